package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/gorilla/websocket"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/input"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// stream pushes a PNG frame every FrameInterval as a binary message and reads
// control messages from the client:
//
//	tap <x> <y>
//	key <name>
//	text <string>
//
// Each control message is answered with a text message, "ok" or
// "error <reason>". With ?compress=1 frames are snappy block-encoded;
// ?half=1 halves their width.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("upgrade: %v", err)
		return
	}
	defer c.Close()

	compress := r.URL.Query().Get("compress") == "1"
	half := r.URL.Query().Get("half") == "1"
	id := RequestID(r.Context())

	// gorilla/websocket allows one writer at a time.
	var wmu sync.Mutex
	write := func(mt int, data []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		return c.WriteMessage(mt, data)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				logger.Debug("[%s] stream read: %v", id, err)
				return
			}
			reply := "ok"
			if err := s.control(string(msg)); err != nil {
				reply = "error " + err.Error()
			}
			logger.Debug("[%s] %q -> %s", id, msg, reply)
			if err := write(websocket.TextMessage, []byte(reply)); err != nil {
				logger.Debug("[%s] stream reply: %v", id, err)
				return
			}
		}
	}()

	interval := s.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		frame, err := s.capturePNG(half)
		if err != nil {
			logger.Warn("[%s] capture: %v", id, err)
		} else {
			if compress {
				frame = snappy.Encode(nil, frame)
			}
			if err := write(websocket.BinaryMessage, frame); err != nil {
				logger.Debug("[%s] stream write: %v", id, err)
				return
			}
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// control applies one client message to the device.
func (s *Server) control(msg string) error {
	op, arg, _ := strings.Cut(strings.TrimSpace(msg), " ")
	switch op {
	case "tap":
		fields := strings.Fields(arg)
		if len(fields) != 2 {
			return fmt.Errorf("tap needs x and y, got %q", arg)
		}
		x, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("bad x: %w", err)
		}
		y, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("bad y: %w", err)
		}
		return s.do(func(a *automator.Automator) error { return a.Click(x, y) })
	case "key":
		if arg == "" {
			return fmt.Errorf("key needs a name")
		}
		return s.do(func(a *automator.Automator) error { return a.Commands.Press(arg) })
	case "text":
		return s.do(func(a *automator.Automator) error {
			return a.SendText(arg, input.Options{Keyboard: input.KeyboardADB})
		})
	default:
		return fmt.Errorf("unknown op %q", op)
	}
}
