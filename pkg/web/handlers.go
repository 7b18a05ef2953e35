package web

import (
	"bytes"
	"errors"
	"image/png"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
	"github.com/teslashibe/go-ecotrack/pkg/capture"
	"github.com/teslashibe/go-ecotrack/pkg/conversation"
	"github.com/teslashibe/go-ecotrack/pkg/visualizer"
	"github.com/teslashibe/go-ecotrack/pkg/voice"
)

// MessageRequest is the body of POST /api/messages
type MessageRequest struct {
	Text string `json:"text"`
}

// ViewportRequest is the body of PUT /api/viewport
type ViewportRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// errorStatus maps pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrCaptureUnavailable), errors.Is(err, voice.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, conversation.ErrBusy), errors.Is(err, voice.ErrListening):
		return fiber.StatusConflict
	case errors.Is(err, conversation.ErrEmptyUtterance):
		return fiber.StatusBadRequest
	case errors.Is(err, conversation.ErrNoSuchUtterance):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func failWith(c *fiber.Ctx, err error) error {
	return fail(c, errorStatus(err), err)
}

func (s *Server) requirePipeline(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return fail(c, fiber.StatusServiceUnavailable, errors.New("voice session not ready"))
	}
	return c.Next()
}

// handleStatus returns the session status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.Status())
}

// handleTranscript returns the conversation so far
func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.Transcript())
}

// handleNotices returns recent notices
func (s *Server) handleNotices(c *fiber.Ctx) error {
	s.noticesMu.RLock()
	defer s.noticesMu.RUnlock()
	return c.JSON(s.notices)
}

func (s *Server) handleStartListening(c *fiber.Ctx) error {
	if err := s.pipeline.StartListening(c.UserContext()); err != nil {
		return failWith(c, err)
	}
	return c.JSON(s.pipeline.Status())
}

func (s *Server) handleStopListening(c *fiber.Ctx) error {
	text, err := s.pipeline.StopListening(c.UserContext())
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{"committed": text, "status": s.pipeline.Status()})
}

func (s *Server) handleToggleListening(c *fiber.Ctx) error {
	if err := s.pipeline.ToggleListening(c.UserContext()); err != nil {
		return failWith(c, err)
	}
	return c.JSON(s.pipeline.Status())
}

func (s *Server) handleStopSpeaking(c *fiber.Ctx) error {
	s.pipeline.StopSpeaking()
	return c.JSON(s.pipeline.Status())
}

// handleSendMessage submits a typed message. The reply arrives on
// /ws/status and /api/transcript.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if strings.TrimSpace(req.Text) == "" {
		return fail(c, fiber.StatusBadRequest, conversation.ErrEmptyUtterance)
	}
	if err := s.pipeline.SendText(c.UserContext(), req.Text); err != nil {
		return failWith(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(s.pipeline.Status())
}

func (s *Server) handleReplay(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, errors.New("index must be an integer"))
	}
	if err := s.pipeline.Replay(index); err != nil {
		return failWith(c, err)
	}
	return c.JSON(s.pipeline.Status())
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	s.pipeline.Reset()
	return c.JSON(s.pipeline.Status())
}

// handleViewport resizes the orb to match the browser window
func (s *Server) handleViewport(c *fiber.Ctx) error {
	var req ViewportRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return fail(c, fiber.StatusBadRequest, errors.New("width and height must be positive"))
	}
	vis := s.pipeline.Visualizer()
	vis.Resize(req.Width, req.Height)
	return c.JSON(fiber.Map{"size": vis.Size()})
}

// handleSnapshot renders one orb frame. ?mode= overrides the live mode.
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	vis := s.pipeline.Visualizer()
	mode := vis.Mode()
	if q := c.Query("mode"); q != "" {
		m, err := visualizer.ParseMode(q)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, err)
		}
		mode = m
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, vis.Snapshot(mode).Image); err != nil {
		return fail(c, fiber.StatusInternalServerError, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

// handleAudio reports microphone and speaker counters
func (s *Server) handleAudio(c *fiber.Ctx) error {
	out := fiber.Map{"mic": nil, "speaker": nil}
	if s.micStats != nil {
		out["mic"] = s.micStats.Stats()
	}
	if s.speakerStats != nil {
		out["speaker"] = s.speakerStats.Stats()
	}
	return c.JSON(out)
}

// handleMicWS receives browser microphone audio as binary messages.
// ?encoding=pcm16|mulaw selects the format and ?rate= the sample rate.
func (s *Server) handleMicWS(c *websocket.Conn) {
	defer c.Close()
	if s.mic == nil {
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "no microphone input"))
		return
	}
	enc, err := audioio.ParseEncoding(c.Query("encoding"))
	if err != nil {
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, err.Error()))
		return
	}
	sampleRate, _ := strconv.Atoi(c.Query("rate"))

	s.logger.Debug("microphone connected", "encoding", enc, "rate", sampleRate)
	for {
		kind, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if err := s.mic.Push(data, enc, sampleRate); err != nil {
			s.logger.Debug("microphone audio rejected", "error", err)
			break
		}
	}
	s.logger.Debug("microphone disconnected")
}
