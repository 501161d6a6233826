package linux

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/capture"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
)

// commandContext is patched in tests
var commandContext = exec.Command

// Options configures the tcpdump process
type Options struct {
	// Binary is the tcpdump executable, default "tcpdump"
	Binary string
	// SnapLen is the per-frame snapshot length; radiotap and 802.11 headers
	// fit in 256 bytes
	SnapLen int
	// Sudo runs tcpdump through sudo -n
	Sudo bool
}

// TcpdumpSource captures 802.11 frames by running tcpdump on a monitor
// interface and decoding the pcap stream it writes to stdout. Every stderr
// line is posted on Errors; tcpdump's "listening on ..." banner is the
// first of them.
type TcpdumpSource struct {
	opts Options
	log  *logger.Logger

	cmd     *exec.Cmd
	packets chan capture.Packet
	errs    chan error
	done    chan struct{}
	once    sync.Once
	readers sync.WaitGroup
}

// NewTcpdumpSource creates an unstarted source
func NewTcpdumpSource(opts Options, log *logger.Logger) *TcpdumpSource {
	if opts.Binary == "" {
		opts.Binary = "tcpdump"
	}
	if opts.SnapLen == 0 {
		opts.SnapLen = 256
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &TcpdumpSource{
		opts:    opts,
		log:     log,
		packets: make(chan capture.Packet, 256),
		errs:    make(chan error, 8),
		done:    make(chan struct{}),
	}
}

// Factory returns a capture.SourceFactory producing tcpdump sources
func Factory(opts Options, log *logger.Logger) capture.SourceFactory {
	return func() capture.Source {
		return NewTcpdumpSource(opts, log)
	}
}

func (s *TcpdumpSource) Packets() <-chan capture.Packet { return s.packets }
func (s *TcpdumpSource) Errors() <-chan error           { return s.errs }

// Start launches tcpdump on iface
func (s *TcpdumpSource) Start(iface string) error {
	if iface == "" {
		return errors.New("capture interface is empty")
	}
	if s.cmd != nil {
		return errors.New("capture source already started")
	}

	args := []string{
		"-i", iface,                        // Monitor interface
		"-U",                               // Flush per packet
		"-n",                               // Don't convert addresses
		"-s", strconv.Itoa(s.opts.SnapLen), // Headers are enough
		"-w", "-",                          // Pcap stream to stdout
	}
	name := s.opts.Binary
	if s.opts.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}

	s.log.Debug("[capture] Running %s with args: %v", name, args)
	cmd := commandContext(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open tcpdump stdout: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open tcpdump stderr: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start tcpdump: %v", err)
	}
	s.cmd = cmd

	s.readers.Add(2)
	go s.readErrors(stderr)
	go s.readPackets(stdout)
	go func() {
		s.readers.Wait()
		waitErr := cmd.Wait()
		s.log.Debug("[capture] tcpdump exited: %v", waitErr)
		close(s.packets)
		close(s.errs)
	}()
	return nil
}

func (s *TcpdumpSource) sendErr(err error) {
	select {
	case s.errs <- err:
	case <-s.done:
	}
}

func (s *TcpdumpSource) readErrors(r io.Reader) {
	defer s.readers.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.sendErr(errors.New(scanner.Text()))
	}
}

func (s *TcpdumpSource) readPackets(r io.Reader) {
	defer s.readers.Done()
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.sendErr(fmt.Errorf("error creating pcap reader: %v", err))
		}
		io.Copy(io.Discard, r)
		return
	}
	linkType := reader.LinkType()
	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.sendErr(fmt.Errorf("error reading pcap stream: %v", err))
			}
			io.Copy(io.Discard, r)
			return
		}
		packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		packet.Metadata().CaptureInfo = ci
		decoded, ok := Decode(packet)
		if !ok {
			continue
		}
		select {
		case s.packets <- decoded:
		case <-s.done:
			io.Copy(io.Discard, r)
			return
		}
	}
}

// Stop kills tcpdump. Safe to call more than once.
func (s *TcpdumpSource) Stop() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.cmd != nil && s.cmd.Process != nil {
			if killErr := s.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
				s.log.Error("[capture] Failed to stop tcpdump: %v", killErr)
				err = fmt.Errorf("failed to stop tcpdump: %v", killErr)
				return
			}
			s.log.Debug("[capture] Successfully stopped tcpdump process")
		}
	})
	return err
}
