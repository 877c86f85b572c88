// Package cmd implements the interactive chat client used by the -connect
// flag of the main binary.
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

const historyFile = ".linerelay_history"

// RunClient connects to a relay server and bridges stdin to it. On a
// terminal it runs a line editor with history; when stdin is a pipe it
// streams lines verbatim so the client can be scripted.
func RunClient(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	// Incoming lines print as they arrive, independent of the prompt.
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
	}()

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return pipeLoop(conn, done)
	}
	return promptLoop(conn, done)
}

func pipeLoop(conn net.Conn, done <-chan struct{}) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(conn, scanner.Text()); err != nil {
			return err
		}
	}
	<-done
	return scanner.Err()
}

func promptLoop(conn net.Conn, done <-chan struct{}) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}
	defer saveHistory(line, histPath)

	for {
		select {
		case <-done:
			// Server closed the connection.
			return nil
		default:
		}

		text, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if text == "" {
			continue
		}
		line.AppendHistory(text)
		if _, err := fmt.Fprintln(conn, text); err != nil {
			return err
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFile
	}
	return filepath.Join(home, historyFile)
}

func saveHistory(line *liner.State, path string) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
