package monitor

import (
	"bufio"
	"context"
	"errors"
	"regexp"
	"strings"
)

const stepQueryRadio = "query physical radio"

// ErrNoRadio is returned when no physical radio could be found
var ErrNoRadio = errors.New("invalid interface: no physical radio found")

var (
	devPhyLine = regexp.MustCompile(`^phy#(\d+)$`)
	wiphyLine  = regexp.MustCompile(`^Wiphy (phy\d+)$`)
)

// physicalRadio finds the radio backing iface, or its monitor twin, from
// `iw dev`. If the listing has no radio it falls back to the first radio
// of `iw phy`. Callers hold p.mu.
func (p *Pipeline) physicalRadio(ctx context.Context, iface string) (string, error) {
	res, err := p.runner.Run(ctx, "iw dev")
	if err == nil && !res.Failed() {
		if phy := radioFromDevList(res.Stdout, iface, p.MonitorName(iface)); phy != "" {
			return phy, nil
		}
	}

	res, err = p.runner.Run(ctx, "iw phy")
	if err != nil || res.Failed() {
		return "", &StepError{
			Step:     stepQueryRadio,
			Command:  "iw phy",
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	if phy := radioFromPhyList(res.Stdout); phy != "" {
		return phy, nil
	}
	return "", &StepError{Step: stepQueryRadio, Command: "iw phy", Err: ErrNoRadio}
}

// radioFromDevList parses `iw dev` output. The radio whose block lists one
// of names wins; otherwise the first radio listed is returned.
func radioFromDevList(out string, names ...string) string {
	var first, current string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := devPhyLine.FindStringSubmatch(line); m != nil {
			current = "phy" + m[1]
			if first == "" {
				first = current
			}
			continue
		}
		name, ok := strings.CutPrefix(line, "Interface ")
		if !ok || current == "" {
			continue
		}
		for _, n := range names {
			if name == n {
				return current
			}
		}
	}
	return first
}

// radioFromPhyList returns the first radio of `iw phy` output
func radioFromPhyList(out string) string {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if m := wiphyLine.FindStringSubmatch(strings.TrimSpace(scanner.Text())); m != nil {
			return m[1]
		}
	}
	return ""
}
