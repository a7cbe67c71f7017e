package core

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/NolanRink/chatroom/internal/credstore"
)

// Validation bounds for accounts and messages.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 32
	MinPasswordLen = 4
	MaxPasswordLen = 8
	MaxMessageLen  = 256
)

// Result is the outcome of processing one command line.
type Result struct {
	// Reply is the response text for the issuing client; empty means
	// no response is sent (successful send, ignored blank line).
	Reply string
	// Err is set for protocol, authorization, and resource errors; its
	// Message is the response text.
	Err *CoreError
	// Close tells the worker to end the connection after replying.
	Close bool
}

// Text returns the line to write back to the issuing client, if any.
func (r Result) Text() string {
	if r.Err != nil {
		return r.Err.Message
	}
	return r.Reply
}

func errResult(code, msg string) Result {
	return Result{Err: coreError(code, msg)}
}

// Processor validates one command per connection-turn against the
// session's state, the credential store, and the presence registry,
// mutates them, and produces the response or triggers routed delivery.
type Processor struct {
	users  *credstore.Store
	reg    *Registry
	router *Router
	log    *zerolog.Logger
}

// NewProcessor constructs a command processor over the shared state.
func NewProcessor(users *credstore.Store, reg *Registry, router *Router, logger *zerolog.Logger) *Processor {
	return &Processor{
		users:  users,
		reg:    reg,
		router: router,
		log:    logger,
	}
}

// Process handles one request line. Verbs are case-insensitive; empty
// lines are ignored without a response.
func (p *Processor) Process(sess *Session, line string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}
	}

	verb := strings.ToLower(strings.Fields(line)[0])
	switch verb {
	case "login":
		return p.login(sess, line)
	case "newuser":
		return p.newUser(sess, line)
	case "send":
		return p.send(sess, line)
	case "who":
		return p.who(sess)
	case "logout":
		return p.logout(sess)
	default:
		return errResult(ErrCodeUnknownCommand, "Error: Unknown command")
	}
}

func (p *Processor) login(sess *Session, line string) Result {
	tokens := strings.Fields(line)
	if len(tokens) != 3 {
		return errResult(ErrCodeBadRequest, "Usage: login <UserID> <Password>")
	}
	if sess.Authenticated() {
		return errResult(ErrCodeAlreadyLoggedIn, "Error: Already logged in as "+sess.Username)
	}

	username, password := tokens[1], tokens[2]
	if res, ok := checkAccountBounds(username, password); !ok {
		return res
	}

	stored, ok := p.users.Lookup(username)
	if !ok || stored != password {
		return errResult(ErrCodeBadCredentials, "Denied. User name or password incorrect.")
	}

	// A username already online on another connection keeps its entry;
	// the second login is refused rather than silently replacing it.
	if !p.reg.Add(username, sess.Conn) {
		return errResult(ErrCodeAlreadyOnline, "Denied. User "+username+" is already logged in.")
	}

	sess.State = StateAuthenticated
	sess.Username = username
	p.log.Info().Str("session", sess.ID).Str("user", username).Msg("login")

	p.router.Broadcast(username+" joins.", sess.Conn)
	return Result{Reply: "login confirmed"}
}

func (p *Processor) newUser(sess *Session, line string) Result {
	tokens := strings.Fields(line)
	if len(tokens) != 3 {
		return errResult(ErrCodeBadRequest, "Usage: newuser <UserID> <Password>")
	}
	if sess.Authenticated() {
		return errResult(ErrCodeAlreadyLoggedIn, "Error: Cannot create new user while logged in")
	}

	username, password := tokens[1], tokens[2]
	if res, ok := checkAccountBounds(username, password); !ok {
		return res
	}

	switch err := p.users.Create(username, password); {
	case err == nil:
		p.log.Info().Str("user", username).Msg("new user account created")
		return Result{Reply: "New user account created."}
	case errors.Is(err, credstore.ErrExists):
		return errResult(ErrCodeUserExists, "Denied. User account already exists.")
	default:
		p.log.Error().Err(err).Str("user", username).Msg("failed to persist new user")
		return errResult(ErrCodePersistFailure, "Error: Could not save new user.")
	}
}

func (p *Processor) send(sess *Session, line string) Result {
	if !sess.Authenticated() {
		return errResult(ErrCodeNotLoggedIn, "Denied. Please login first.")
	}

	// Keep the message verbatim: only the verb and target are tokens.
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || parts[1] == "" {
		return errResult(ErrCodeBadRequest, "Usage: send <target> <message>")
	}
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return errResult(ErrCodeBadRequest, "Error: Message is empty")
	}
	message := parts[2]
	if utf8.RuneCountInString(message) > MaxMessageLen {
		return errResult(ErrCodeMessageLength, "Error: Message must be between 1 and 256 characters long")
	}

	target := parts[1]
	full := sess.Username + ": " + message

	if strings.EqualFold(target, "all") {
		failed := p.router.Broadcast(full, sess.Conn)
		p.log.Info().Str("user", sess.Username).Int("failed", failed).Msg("broadcast")
		return Result{}
	}

	switch p.router.Unicast(target, full) {
	case Delivered:
		p.log.Info().Str("user", sess.Username).Str("target", target).Msg("unicast")
		return Result{}
	case TargetOffline:
		return errResult(ErrCodeTargetOffline, "Error: User "+target+" is not online.")
	default:
		return errResult(ErrCodeDeliveryFailed, "Error: Could not send message to "+target+".")
	}
}

func (p *Processor) who(sess *Session) Result {
	if !sess.Authenticated() {
		return errResult(ErrCodeNotLoggedIn, "Denied. Please login first.")
	}
	return Result{Reply: strings.Join(p.reg.Online(), ", ")}
}

func (p *Processor) logout(sess *Session) Result {
	if !sess.Authenticated() {
		return errResult(ErrCodeNotLoggedIn, "Error: You are not logged in")
	}

	farewell := sess.Username + " left."
	p.router.Broadcast(farewell, sess.Conn)
	p.reg.Remove(sess.Username)
	p.log.Info().Str("session", sess.ID).Str("user", sess.Username).Msg("logout")

	sess.State = StateAnonymous
	sess.Username = ""
	return Result{Reply: farewell, Close: true}
}

// Disconnect releases registry state after an ungraceful connection
// end. Unlike logout, no departure broadcast is sent.
func (p *Processor) Disconnect(sess *Session) {
	if !sess.Authenticated() {
		return
	}
	p.reg.Remove(sess.Username)
	p.log.Info().Str("session", sess.ID).Str("user", sess.Username).Msg("disconnected")
	sess.State = StateAnonymous
	sess.Username = ""
}

func checkAccountBounds(username, password string) (Result, bool) {
	if n := len(username); n < MinUsernameLen || n > MaxUsernameLen {
		return errResult(ErrCodeBadRequest, "UserID must be 3-32 characters long"), false
	}
	if n := len(password); n < MinPasswordLen || n > MaxPasswordLen {
		return errResult(ErrCodeBadRequest, "Password must be 4-8 characters long"), false
	}
	return Result{}, true
}
