package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/checker"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/device"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/input"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

type shellRequest struct {
	Command string `json:"command"`
}

type tapRequest struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Times int `json:"times"`
}

type textRequest struct {
	Text     string `json:"text"`
	Keyboard string `json:"keyboard"`
	Slow     bool   `json:"slow"`
}

type xpathRequest struct {
	XPath string `json:"xpath"`
	Index int    `json:"index"`
}

type condition struct {
	Name  string `json:"name"`
	XPath string `json:"xpath"`
}

type waitForRequest struct {
	Conditions []condition `json:"conditions"`
	Repeat     int         `json:"repeat"`
	Index      int         `json:"index"`
	Click      bool        `json:"click"`
}

type lookupResponse struct {
	OK       bool   `json:"ok"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
	Matched  string `json:"matched,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Request string `json:"request,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Request: RequestID(r.Context())})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

// lookupStatus maps a lookup outcome onto an HTTP status.
func lookupStatus(res core.LookupResult) int {
	switch res.Status {
	case core.LookupFound:
		return http.StatusOK
	case core.LookupMalformed:
		return http.StatusBadRequest
	case core.LookupFailed:
		return http.StatusBadGateway
	default:
		return http.StatusNotFound
	}
}

func writeLookup(w http.ResponseWriter, res core.LookupResult, matched string) {
	writeJSON(w, lookupStatus(res), lookupResponse{
		OK:       res.Found(),
		Status:   res.Status.String(),
		Attempts: res.Attempts,
		Reason:   res.Reason,
		Matched:  matched,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "serial": s.Automator.Serial()})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	var info device.Info
	err := s.do(func(a *automator.Automator) (err error) {
		info, err = a.Info()
		return err
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) screenshot(w http.ResponseWriter, r *http.Request) {
	png, err := s.capturePNG(false)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) hierarchy(w http.ResponseWriter, r *http.Request) {
	var data []byte
	err := s.do(func(a *automator.Automator) error {
		path, _, err := a.DumpXML()
		if err != nil {
			return err
		}
		data, err = os.ReadFile(path) //#nosec G304 -- configured dump path
		return err
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(data)
}

func (s *Server) shell(w http.ResponseWriter, r *http.Request) {
	var req shellRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Command == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("command is required"))
		return
	}

	var out string
	err := s.do(func(a *automator.Automator) (err error) {
		out, err = a.Shell(req.Command)
		return err
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

func (s *Server) tap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.do(func(a *automator.Automator) error {
		if req.Times > 1 {
			return a.Input.TapTimes(req.X, req.Y, req.Times)
		}
		return a.Click(req.X, req.Y)
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{OK: true, Status: core.LookupFound.String()})
}

func (s *Server) tapText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	var res core.LookupResult
	_ = s.do(func(a *automator.Automator) error {
		_, res = a.ClickText(req.Text)
		return nil
	})
	writeLookup(w, res, "")
}

func (s *Server) tapXPath(w http.ResponseWriter, r *http.Request) {
	var req xpathRequest
	if !decode(w, r, &req) {
		return
	}
	if req.XPath == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("xpath is required"))
		return
	}

	var res core.LookupResult
	_ = s.do(func(a *automator.Automator) error {
		_, res = a.ClickXMLCoordinates(req.XPath, req.Index)
		return nil
	})
	writeLookup(w, res, "")
}

func (s *Server) text(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	kb := input.KeyboardADB
	if req.Keyboard != "" {
		var err error
		if kb, err = input.ParseKeyboard(req.Keyboard); err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	err := s.do(func(a *automator.Automator) error {
		return a.SendText(req.Text, input.Options{Keyboard: kb, Slow: req.Slow})
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{OK: true, Status: core.LookupFound.String()})
}

func (s *Server) key(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	err := s.do(func(a *automator.Automator) error {
		return a.Commands.Press(key)
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{OK: true, Status: core.LookupFound.String()})
}

func (s *Server) waitFor(w http.ResponseWriter, r *http.Request) {
	var req waitForRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Conditions) == 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("at least one condition is required"))
		return
	}
	conds := make([]flow.Condition, len(req.Conditions))
	for i, c := range req.Conditions {
		conds[i] = flow.Condition{Name: c.Name, XPath: c.XPath}
	}
	opts := checker.Options{Repeat: req.Repeat, Index: req.Index}

	var (
		name string
		res  core.LookupResult
	)
	_ = s.do(func(a *automator.Automator) error {
		name, res = a.Checker().FirstMatching(conds, opts)
		if req.Click && name != checker.NotElement {
			for _, c := range conds {
				if c.Name == name {
					opts.Repeat, opts.Click = 1, true
					_, res = a.Checker().CheckElement(c.XPath, opts)
					break
				}
			}
		}
		return nil
	})
	writeLookup(w, res, name)
}

// capturePNG grabs one screenshot, optionally shrinking it to half size for
// the stream.
func (s *Server) capturePNG(half bool) ([]byte, error) {
	var buf bytes.Buffer
	err := s.do(func(a *automator.Automator) error {
		_, img, err := a.ScreenCapture()
		if err != nil {
			return err
		}
		if half {
			img = imaging.Resize(img, img.Bounds().Dx()/2, 0, imaging.Box)
		}
		return imaging.Encode(&buf, img, imaging.PNG)
	})
	return buf.Bytes(), err
}
