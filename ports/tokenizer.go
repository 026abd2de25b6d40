package ports

import "github.com/0xsend/sendauth/core"

// Tokenizer converts between sessions and their signed token form
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
