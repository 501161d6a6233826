package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/wifi"
)

var errQuit = errors.New("quit")

const shellHelp = `Commands:
  wake              enter monitor mode
  sleep             leave monitor mode, pausing a capture first
  record [secs]     start capturing, reporting every secs seconds
  pause             stop capturing
  interface <name>  change the managed interface (only while dormant)
  status            print the current mode
  quit              put the adapter to sleep and exit
`

// commander is the part of wifi.Controller driven by operator commands
type commander interface {
	WakeUp()
	Sleep()
	Pause()
	Record(period time.Duration)
	ChangeInterface(name string) error
	Snapshot() wifi.State
}

// dispatch runs one operator command line. It returns errQuit for quit.
func dispatch(c commander, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "wake", "wakeup":
		c.WakeUp()
	case "sleep":
		c.Sleep()
	case "pause":
		c.Pause()
	case "record":
		var period time.Duration
		if len(fields) > 1 {
			secs, err := strconv.Atoi(fields[1])
			if err != nil || secs <= 0 {
				return fmt.Errorf("invalid record period %q", fields[1])
			}
			period = time.Duration(secs) * time.Second
		}
		c.Record(period)
	case "interface":
		if len(fields) != 2 {
			return errors.New("usage: interface <name>")
		}
		return c.ChangeInterface(fields[1])
	case "status":
		printStatus(out, c.Snapshot())
	case "help", "?":
		fmt.Fprint(out, shellHelp)
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return nil
}

func printStatus(out io.Writer, s wifi.State) {
	fmt.Fprintf(out, "mode: %s\ninterface: %s\n", s.Mode, s.Interface)
	if s.InFlight != nil {
		fmt.Fprintf(out, "in flight: %s -> %s\n", s.InFlight.Request, s.InFlight.Target)
	}
	if s.Deferred != nil {
		fmt.Fprintf(out, "deferred: %s at %s\n", s.Deferred.Request, s.Deferred.Target)
	}
}

// readLines feeds lines of r to the returned channel, closed at EOF
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
