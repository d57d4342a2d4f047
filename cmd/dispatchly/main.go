// dispatchly is a one-shot CLI over the dispatch engine: it loads a yaml
// config, issues a prompt against the configured models and prints the
// response, or pipes the live SSE stream to stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"github.com/viant/dispatchly/engine"
	"github.com/viant/dispatchly/fault"
	"gopkg.in/yaml.v3"
)

type options struct {
	Config  string   `short:"f" long:"config" description:"yaml config file" required:"true"`
	Prompt  string   `short:"p" long:"prompt" description:"user prompt"`
	Models  []string `short:"m" long:"model" description:"candidate model, provider:model; repeatable"`
	Stream  bool     `long:"stream" description:"stream the response as SSE frames"`
	Session string   `long:"session" description:"session id to continue"`
	Resume  string   `long:"resume" description:"event id to resume from (implies --stream)"`
	Context string   `long:"context" description:"system instruction"`
	Verbose bool     `short:"v" long:"verbose" description:"debug logging"`
}

func main() {
	opts := &options{}
	if _, err := flags.Parse(opts); err != nil {
		os.Exit(1)
	}
	if err := run(opts); err != nil {
		var f *fault.Fault
		if errors.As(err, &f) {
			fmt.Fprintf(os.Stderr, "%v: %v\n", f.Code, f.Message)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(opts *options) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	config, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	e, err := engine.New(config, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := e.Init(ctx); err != nil {
		return err
	}
	defer e.Close()

	request := &engine.Request{
		Prompt: opts.Prompt,
		Models: opts.Models,
		Options: &engine.RequestOptions{
			SessionID:     opts.Session,
			ResumeEventID: opts.Resume,
			Context:       opts.Context,
			Stream:        opts.Stream || opts.Resume != "",
		},
	}
	response, err := e.Request(ctx, request)
	if err != nil {
		return err
	}
	if response.Stream == nil {
		fmt.Printf("%v\n", response.Text)
		logger.WithField("session", response.SessionID).
			WithField("result", response.Result).Debug("request completed")
		return nil
	}
	defer response.Stream.Close()
	logger.WithField("session", response.Stream.SessionID()).Debug("streaming")
	if _, err := io.Copy(os.Stdout, response.Stream); err != nil {
		return err
	}
	return nil
}

func loadConfig(path string) (*engine.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %v: %w", path, err)
	}
	config := &engine.Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", path, err)
	}
	return config, nil
}
