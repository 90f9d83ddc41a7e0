package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/barpath/tracker/internal/codec"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/model"
)

// session is one source channel. The reader processes frames in
// arrival order; replies share the connection under writeMu.
type session struct {
	srv     *Server
	conn    *websocket.Conn
	limiter *rate.Limiter

	writeMu       sync.Mutex
	authenticated bool
	awaitingZip   time.Time
}

func (s *session) run(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)

	for {
		if ctx.Err() != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.IdleTimeout))

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Source channel read error")
			}
			return
		}

		if !s.limiter.Allow() {
			s.reply(internalReply("rate_limited"))
			continue
		}

		switch msgType {
		case websocket.TextMessage:
			s.srv.hub.CountFrame(false)
			if closeAfter := s.handleText(data); closeAfter != 0 {
				s.closeWith(closeAfter)
				return
			}
		case websocket.BinaryMessage:
			s.srv.hub.CountFrame(true)
			if closeAfter := s.handleBinary(data); closeAfter != 0 {
				s.closeWith(closeAfter)
				return
			}
		}
	}
}

// handleText processes one textual frame. The returned close code is 0
// when the channel should stay open. Errors never escape the handler
// boundary: every frame gets a reply.
func (s *session) handleText(data []byte) (closeCode int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Text frame handler panic")
			s.reply(internalReply("handler_panic"))
			closeCode = 0
		}
	}()

	frame, err := codec.DecodeText(data)
	if err != nil {
		s.reply(badFrameReply(err))
		return 0
	}

	if s.srv.capture != nil {
		s.srv.capture.CaptureText(frame.Name, data)
	}

	if err := s.srv.policy.Check(frame.Version); err != nil {
		if codec.KindOf(err) == codec.ErrVersionMismatch {
			s.reply(versionReply(frame.Version, s.srv.cfg.MinVersion))
			s.srv.protocolDisputed = true
			s.srv.hub.EmitProtocolError(frame.Version, s.srv.cfg.MinVersion)
			return CloseVersionMismatch
		}
		s.reply(internalReply("version_policy"))
		return 0
	}
	if s.srv.protocolDisputed {
		s.srv.protocolDisputed = false
		s.srv.hub.EmitProtocolOK()
	}

	if s.srv.cfg.Secret != "" && !s.authenticated {
		if !s.checkUpdateKey(frame.Payload) {
			s.reply(unauthenticatedReply())
			return CloseUnauthenticated
		}
		s.authenticated = true
	}

	switch frame.Kind {
	case codec.KindDatabase:
		s.reply(s.handleDatabase(frame.Payload))
	case codec.KindUpdate:
		s.reply(s.handleUpdate(frame.Payload, hub.KindUpdate))
	case codec.KindTimer:
		s.reply(s.handleUpdate(frame.Payload, hub.KindTimer))
	case codec.KindDecision:
		s.reply(s.handleUpdate(frame.Payload, hub.KindDecision))
	default:
		// Unknown types run through the same precondition policy.
		s.reply(s.handleUpdate(frame.Payload, hub.KindGeneric))
	}
	return 0
}

// handleBinary routes one binary frame to the extractor. Binary frames
// on a secured channel require prior text-frame authentication.
func (s *session) handleBinary(data []byte) (closeCode int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Binary frame handler panic")
			s.reply(internalReply("handler_panic"))
			closeCode = 0
		}
	}()

	if s.srv.cfg.Secret != "" && !s.authenticated {
		s.reply(unauthenticatedReply())
		return CloseUnauthenticated
	}

	frame, err := codec.DecodeBinary(data)
	if err != nil {
		s.reply(badFrameReply(err))
		return 0
	}

	if canonical, _ := codec.CanonicalBinaryType(frame.Type); canonical == codec.BinaryDatabaseZip && !s.awaitingZip.IsZero() {
		if time.Now().After(s.awaitingZip) {
			log.Warn().Msg("database_zip arrived after the sentinel wait window")
		}
		s.awaitingZip = time.Time{}
	}

	if _, known := codec.CanonicalBinaryType(frame.Type); !known {
		// Empty or unrecognized type: warn and report, keep the channel.
		log.Warn().Str("type", frame.Type).Int("bytes", len(frame.Payload)).Msg("Unknown binary frame type")
		s.reply(Reply{Status: 400, Error: "Unknown binary type", Reason: string(codec.ErrUnknownBinaryType)})
		return 0
	}

	if err := s.srv.extractor.Handle(frame); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			s.reply(Reply{Status: 400, Error: ve.Error(), Reason: "invalid_data_structure"})
			return 0
		}
		s.reply(internalReply("extraction_failed"))
		return 0
	}
	s.reply(okReply(frame.Type + " processed"))
	return 0
}

func (s *session) handleDatabase(payload json.RawMessage) Reply {
	db, err := model.ParseDatabase(payload)
	if err != nil {
		return Reply{Status: 400, Error: err.Error(), Reason: "invalid_data_structure"}
	}

	// Empty-database sentinel: metadata now, the athlete body follows
	// as a database_zip frame shortly.
	if len(db.Athletes) == 0 {
		s.srv.hub.SetDatabaseMetadata(db.Competition)
		s.awaitingZip = time.Now().Add(s.srv.cfg.DatabaseZipWait)
		return retryReply("Awaiting database_zip")
	}

	res, err := s.srv.hub.IngestDatabase(db)
	var ve *model.ValidationError
	switch {
	case errors.Is(err, hub.ErrAlreadyLoading):
		return retryReply("Database load in progress")
	case errors.As(err, &ve):
		return Reply{Status: 400, Error: ve.Error(), Reason: "invalid_data_structure"}
	case err != nil:
		return internalReply("database_ingest")
	case res.Cached:
		return cachedReply("Database unchanged")
	default:
		return okReply("Database processed")
	}
}

func (s *session) handleUpdate(payload json.RawMessage, kind hub.UpdateKind) Reply {
	platform := platformOf(payload)
	res, err := s.srv.hub.IngestUpdate(platform, payload, kind)
	if err != nil {
		return Reply{Status: 400, Error: err.Error(), Reason: string(codec.ErrJSONParse)}
	}
	if len(res.Missing) > 0 {
		return preconditionsReply(res.Missing)
	}
	return okReply("Update processed")
}

func (s *session) checkUpdateKey(payload json.RawMessage) bool {
	var p struct {
		UpdateKey string `json:"updateKey"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	return p.UpdateKey == s.srv.cfg.Secret
}

func (s *session) reply(r Reply) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(r); err != nil {
		log.Debug().Err(err).Msg("Reply write failed")
	}
}

func (s *session) closeWith(code int) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
}

// platformOf pulls the platform identifier out of an update payload.
func platformOf(payload json.RawMessage) string {
	var p struct {
		Fop string `json:"fop"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.Fop
}
