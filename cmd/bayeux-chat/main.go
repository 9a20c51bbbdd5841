// Command bayeux-chat is a small interactive client demonstrating the
// package's Client API: it connects to a Bayeux server, subscribes to one
// or more channels given on the command line, and prints every message it
// receives while relaying lines typed on stdin as publishes to the first
// subscribed channel.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	gobayeux "github.com/mwhobrey/go-faye"
)

type config struct {
	Hostname string
	Port     uint
	Protocol string
	Path     string
	LogLevel string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	flags := flag.NewFlagSet("bayeux-chat", flag.ExitOnError)
	flags.StringVar(&cfg.Protocol, "protocol", "https", "the protocol to use (http or https)")
	flags.UintVar(&cfg.Port, "port", 443, "the port used to connect to the Bayeux server")
	flags.StringVar(&cfg.Hostname, "hostname", "", "the hostname to connect to")
	flags.StringVar(&cfg.Path, "path", "/faye", "the path used to connect to bayeux")
	flags.StringVar(&cfg.LogLevel, "loglevel", "error", "the level to log at")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	channelNames := flags.Args()
	if cfg.Hostname == "" || len(channelNames) == 0 {
		return fmt.Errorf("usage: bayeux-chat -hostname HOST [flags] CHANNEL [CHANNEL...]")
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.ErrorLevel
	}
	logger.SetLevel(level)

	serverURL := url.URL{Scheme: cfg.Protocol, Host: fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port), Path: cfg.Path}
	client, err := gobayeux.NewClient(serverURL.String(), gobayeux.WithFieldLogger(logger))
	if err != nil {
		return fmt.Errorf("initializing client: %w", err)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer client.Disconnect(context.Background())

	room := gobayeux.Normalize(channelNames[0])
	for _, name := range channelNames {
		channel := gobayeux.Normalize(name)
		if _, err := client.Subscribe(ctx, channel, func(data json.RawMessage) {
			fmt.Printf("[%s] %s\n", channel, string(data))
		}); err != nil {
			return fmt.Errorf("subscribing to %s: %w", channel, err)
		}
	}

	fmt.Fprintf(os.Stderr, "connected; typed lines are published to %s\n", room)

	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if _, err := client.Publish(ctx, room, line); err != nil {
				logger.WithError(err).Warn("publish failed")
			}
		}
	}
}
