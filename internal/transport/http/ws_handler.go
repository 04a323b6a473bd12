package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pings must outpace the read deadline
	pingPeriod = (pongWait * 9) / 10
	joinWait   = 15 * time.Second

	// messages drained into a single batch frame per write
	maxBatch = 16
)

type WSHandler struct {
	service  *app.RoomService
	auth     TokenValidator
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewWSHandler(service *app.RoomService, auth TokenValidator, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		auth:    auth,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type adminJoinPayload struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

type participantJoinPayload struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	AvatarSeed    string `json:"avatarSeed"`
}

type pingPayload struct {
	ClientTime int64 `json:"clientTime"`
}

type pongPayload struct {
	ClientTime int64 `json:"clientTime"`
	ServerTime int64 `json:"serverTime"`
}

type answerPayload struct {
	QuestionIndex  int     `json:"questionIndex"`
	SelectedOption int     `json:"selectedOption"`
	TimeTakenSec   float64 `json:"timeTakenSec"`
}

type batchPayload struct {
	Messages []wsMessage `json:"messages"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the connection protocol: the
// first frame must be admin_joined or participant_joined; everything
// after that is dispatched against the room the connection was bound to.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer sock.Close()

	handle, err := h.admit(r, sock)
	if err != nil {
		if errors.Is(err, domain.ErrRoomEnded) {
			// Resync against a finished room: terminal notice, then close.
			_ = sock.WriteJSON(wsMessage{Type: string(domain.EventQuizEnded)})
		} else {
			_ = sock.WriteJSON(wsMessage{Type: "error", Payload: errorOf(err)})
		}
		return
	}
	defer h.service.Unregister(handle)

	send := make(chan wsMessage, maxBatch*2)
	closeSignals := make(chan struct{})
	roomClosed := make(chan struct{})
	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	go h.writeLoop(sock, send, roomClosed, writerDone)
	go forwardEvents(handle, send, closeSignals, roomClosed, forwardDone)

	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := sock.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, handle, inbound, send)
	}

	close(closeSignals)
	<-forwardDone
	close(send)
	<-writerDone
}

// admit reads the join frame and registers the connection with the room
// service. Admin tokens may arrive in the payload or the Authorization
// header.
func (h *WSHandler) admit(r *http.Request, sock *websocket.Conn) (*app.Conn, error) {
	_ = sock.SetReadDeadline(time.Now().Add(joinWait))
	var first inboundMessage
	if err := sock.ReadJSON(&first); err != nil {
		return nil, domain.ErrInvalidIdentity
	}

	switch first.Type {
	case "admin_joined":
		var join adminJoinPayload
		if err := json.Unmarshal(first.Payload, &join); err != nil {
			return nil, domain.ErrInvalidIdentity
		}
		token := join.Token
		if token == "" {
			token = bearerToken(r)
		}
		subject, err := h.auth.Validate(token)
		if err != nil {
			return nil, err
		}
		return h.service.Register(r.Context(), roomCode(join.Code), domain.RoleAdmin, subject, "", "")
	case "participant_joined":
		var join participantJoinPayload
		if err := json.Unmarshal(first.Payload, &join); err != nil {
			return nil, domain.ErrInvalidIdentity
		}
		return h.service.Register(r.Context(), roomCode(join.Code), domain.RoleParticipant, join.ParticipantID, join.Name, join.AvatarSeed)
	default:
		return nil, domain.ErrInvalidIdentity
	}
}

func (h *WSHandler) dispatch(r *http.Request, handle *app.Conn, inbound inboundMessage, send chan<- wsMessage) {
	code := handle.RoomCode

	reply := func(msg wsMessage) {
		// Never let a dead writer stall the read loop; drops surface as
		// a closed socket on the next read.
		select {
		case send <- msg:
		default:
		}
	}
	replyErr := func(err error) {
		reply(wsMessage{Type: "error", Payload: errorOf(err)})
	}

	switch inbound.Type {
	case "ping":
		var ping pingPayload
		_ = json.Unmarshal(inbound.Payload, &ping)
		reply(wsMessage{Type: "pong", Payload: pongPayload{
			ClientTime: ping.ClientTime,
			ServerTime: time.Now().UnixMilli(),
		}})
	case "request_state_sync":
		snap, err := h.service.Snapshot(code, handle.ParticipantID)
		if err != nil {
			replyErr(err)
			return
		}
		reply(wsMessage{Type: string(domain.EventSnapshot), Payload: snap})
	case "submit_answer":
		if handle.Role != domain.RoleParticipant {
			replyErr(domain.ErrInvalidIdentity)
			return
		}
		var answer answerPayload
		if err := json.Unmarshal(inbound.Payload, &answer); err != nil {
			replyErr(domain.ErrStaleQuestion)
			return
		}
		result, err := h.service.SubmitAnswer(r.Context(), code, handle.ParticipantID, answer.QuestionIndex, answer.SelectedOption, answer.TimeTakenSec)
		if err != nil {
			replyErr(err)
			return
		}
		reply(wsMessage{Type: "answer_result", Payload: result})
	case "quiz_starting":
		h.adminAction(handle, replyErr, func() error { return h.service.StartQuiz(r.Context(), code) })
	case "reveal_answers", "show_answer":
		h.adminAction(handle, replyErr, func() error { return h.service.RevealAnswers(code) })
	case "show_leaderboard":
		h.adminAction(handle, replyErr, func() error { return h.service.ShowLeaderboard(r.Context(), code) })
	case "next_question":
		h.adminAction(handle, replyErr, func() error { return h.service.NextQuestion(r.Context(), code) })
	case "end_quiz":
		h.adminAction(handle, replyErr, func() error { return h.service.EndQuiz(r.Context(), code) })
	case "kick_participant":
		var kick domain.ParticipantRef
		if err := json.Unmarshal(inbound.Payload, &kick); err != nil {
			replyErr(domain.ErrInvalidIdentity)
			return
		}
		h.adminAction(handle, replyErr, func() error { return h.service.KickParticipant(code, kick.ParticipantID) })
	default:
		reply(wsMessage{Type: "error", Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}})
	}
}

func (h *WSHandler) adminAction(handle *app.Conn, replyErr func(error), action func() error) {
	if handle.Role != domain.RoleAdmin {
		replyErr(ErrUnauthorized)
		return
	}
	if err := action(); err != nil {
		// Rejections go to the requesting admin only, never broadcast.
		replyErr(err)
	}
}

// writeLoop owns all socket writes: queued messages (batched when more
// than one is pending), heartbeat pings, and the close frame.
func (h *WSHandler) writeLoop(sock *websocket.Conn, send chan wsMessage, roomClosed <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	flush := func(first wsMessage) bool {
		pending := []wsMessage{first}
		for len(pending) < maxBatch {
			select {
			case msg, ok := <-send:
				if !ok {
					break
				}
				pending = append(pending, msg)
				continue
			default:
			}
			break
		}
		_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
		var err error
		if len(pending) == 1 {
			err = sock.WriteJSON(pending[0])
		} else {
			err = sock.WriteJSON(wsMessage{Type: "batch", Payload: batchPayload{Messages: pending}})
		}
		if err != nil {
			h.logger.Debug().Err(err).Msg("ws write error")
			sock.Close()
			return false
		}
		return true
	}

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
				_ = sock.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if !flush(msg) {
				return
			}
		case <-ticker.C:
			_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				sock.Close()
				return
			}
		case <-roomClosed:
			// Room dropped the connection; deliver what is queued, then
			// close so the read loop unblocks.
			for {
				select {
				case msg := <-send:
					if !flush(msg) {
						return
					}
					continue
				default:
				}
				break
			}
			_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
			_ = sock.WriteMessage(websocket.CloseMessage, nil)
			sock.Close()
			return
		}
	}
}

// forwardEvents copies room events into the connection's send queue
// until either side shuts down. A terminal event is the connection's
// last frame: the writer flushes it and closes the socket.
func forwardEvents(handle *app.Conn, send chan<- wsMessage, closeSignals, roomClosed chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-handle.Events():
			if !ok {
				close(roomClosed)
				return
			}
			select {
			case send <- wsMessage{Type: string(ev.Type), Payload: ev.Payload}:
			case <-closeSignals:
				return
			}
			if ev.Terminal {
				close(roomClosed)
				return
			}
		case <-closeSignals:
			return
		}
	}
}

func errorOf(err error) errorPayload {
	return errorPayload{Code: errorCode(err), Message: err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return "room_not_found"
	case errors.Is(err, domain.ErrRoomEnded):
		return "room_ended"
	case errors.Is(err, domain.ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNoParticipants):
		return "no_participants"
	case errors.Is(err, domain.ErrStaleQuestion):
		return "stale_question"
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, domain.ErrRoomNotLive):
		return "room_not_live"
	case errors.Is(err, domain.ErrDuplicateAvatarSeed):
		return "duplicate_avatar_seed"
	case errors.Is(err, domain.ErrParticipantKicked):
		return "participant_kicked"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Room codes are case-insensitive on the wire.
func roomCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
