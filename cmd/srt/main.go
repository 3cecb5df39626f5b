// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// srt runs a command inside an OS-level sandbox with network and
// filesystem policy enforcement.
//
// Usage:
//
//	srt [-d] [-s PATH] [-c COMMAND | COMMAND [ARGS...]]
//
// The policy is read from ~/.srt-settings.json (or the file given with
// -s). Exit status is the child's; 2 for policy validation errors, 3
// for sandbox engine errors, 64 for usage errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/srt/lib/platform"
	"github.com/bureau-foundation/srt/lib/shellquote"
	"github.com/bureau-foundation/srt/manager"
	"github.com/bureau-foundation/srt/policy"
)

// Exit codes beyond the child's own status.
const (
	exitPolicyError = 2
	exitEngineError = 3
	exitUsage       = 64
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("srt", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	debug := flags.BoolP("debug", "d", false, "enable debug logging")
	settingsPath := flags.StringP("settings", "s", "", "path to settings file (default ~/.srt-settings.json)")
	commandString := flags.StringP("command", "c", "", "run a command string via the shell")
	controlFD := flags.Int("control-fd", -1, "file descriptor for dynamic policy updates (JSON lines)")
	watchSettings := flags.Bool("watch-settings", false, "reload the settings file on change")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: srt [-d] [-s PATH] [--control-fd N] [--watch-settings] [-c COMMAND | COMMAND [ARGS...]]\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return exitUsage
	}

	logLevel := slog.LevelInfo
	if *debug || os.Getenv("SRT_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	command := *commandString
	if command == "" {
		if flags.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "No command specified. Use -c <command> or provide a command as arguments.")
			flags.Usage()
			return exitUsage
		}
		command = shellquote.Join(flags.Args())
	}

	// Load policy.
	var p *policy.Policy
	var err error
	if *settingsPath != "" {
		p, err = policy.Load(*settingsPath)
	} else {
		p, err = policy.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitPolicyError
	}

	// Interactive invocations on macOS get a PTY unless policy already
	// decided; non-interactive runs stay locked down.
	if platform.Current() == platform.MacOS && !p.AllowPty &&
		term.IsTerminal(int(os.Stdin.Fd())) {
		logger.Debug("interactive terminal detected; enabling pty access")
		p.AllowPty = true
	}

	m := manager.New(manager.Config{
		Logger:    logger,
		ControlFD: *controlFD,
	})

	if err := m.Initialize(p); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize sandbox: %v\n", err)
		var policyErr *policy.Error
		if errors.As(err, &policyErr) {
			return exitPolicyError
		}
		return exitEngineError
	}
	defer m.Reset()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watchSettings {
		path := *settingsPath
		if path == "" {
			path = policy.DefaultSettingsPath()
		}
		if path != "" {
			go m.WatchSettings(ctx, path)
		}
	}

	session, err := m.WrapWithSandbox(command, "", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to wrap command: %v\n", err)
		return exitEngineError
	}
	logger.Debug("wrapped command", "command", session.WrappedCommand)

	return execute(ctx, m, command, session)
}

// execute runs the wrapped command and returns its exit status. The
// proxy environment always wins over inherited variables so the sandbox
// cannot be pointed away from the filtering proxies.
func execute(ctx context.Context, m *manager.Manager, command string, session *manager.Session) int {
	cmd := exec.CommandContext(ctx, "sh", "-c", session.WrappedCommand)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Env = mergedEnv(session.ExtraEnv, m.ProxyEnv())

	// On Linux the only violation signal is the child's own stderr;
	// tee it through the monitor.
	monitor := m.Monitor()
	if monitor != nil && platform.Current() == platform.Linux {
		pr, pw := io.Pipe()
		cmd.Stderr = io.MultiWriter(os.Stderr, pw)
		done := make(chan struct{})
		go func() {
			defer close(done)
			monitor.ConsumeStderr(command, pr)
		}()
		defer func() {
			pw.Close()
			<-done
			reportViolations(m, command)
		}()
	} else {
		cmd.Stderr = os.Stderr
		defer reportViolations(m, command)
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				return 128 + int(status.Signal())
			}
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "error: failed to execute command: %v\n", err)
		return exitEngineError
	}
	return 0
}

// reportViolations summarizes recorded violations for the command.
// Proxy-recorded violations carry no command attribution and stay in
// the store for control-channel queries.
func reportViolations(m *manager.Manager, command string) {
	violations := m.Store().ForCommand(command)
	if len(violations) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "\n--- Sandbox Violations ---")
	for _, v := range violations {
		line := v.Raw
		if line == "" {
			line = fmt.Sprintf("%s %s", v.Kind, v.Subject)
		}
		fmt.Fprintf(os.Stderr, "  %s\n", line)
	}
}

// mergedEnv layers extra environment over the inherited one, with the
// proxy variables on top. Proxy variables cannot be unset or overridden
// by the caller.
func mergedEnv(extraEnv, proxyEnv map[string]string) []string {
	merged := make(map[string]string)
	for _, entry := range os.Environ() {
		for i := 0; i < len(entry); i++ {
			if entry[i] == '=' {
				merged[entry[:i]] = entry[i+1:]
				break
			}
		}
	}
	for key, value := range extraEnv {
		merged[key] = value
	}
	for key, value := range proxyEnv {
		merged[key] = value
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}
