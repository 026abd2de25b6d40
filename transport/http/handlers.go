package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/service"
	"github.com/0xsend/sendauth/userop"
)

const sessionCookie = "sendauth_session"

// Handlers contains the HTTP handlers for auth and wallet endpoints.
type Handlers struct {
	auth         *service.AuthService
	signers      *service.SignerService
	sender       *service.SendService
	tokens       userop.TokenBook
	cookieDomain string
	logger       *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	auth *service.AuthService,
	signers *service.SignerService,
	sender *service.SendService,
	tokens userop.TokenBook,
	cookieDomain string,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		auth:         auth,
		signers:      signers,
		sender:       sender,
		tokens:       tokens,
		cookieDomain: cookieDomain,
		logger:       logger.Named("http"),
	}
}

// writeError maps a service error onto an HTTP status. Internal errors get
// a generic message so store and RPC detail never reaches clients.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch core.KindOf(err) {
	case core.KindBadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case core.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case core.KindUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case core.KindExhausted:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case core.KindTransient:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// Challenge issues (or replaces) the caller's login challenge.
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		RecoveryKind string `json:"recovery_kind" binding:"required"`
		Identifier   string `json:"identifier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	challenge, err := h.auth.IssueChallenge(c.Request.Context(), req.RecoveryKind, req.Identifier)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge_id": challenge.ID,
		"challenge":    hexutil.Encode(challenge.Bytes),
		"expires_at":   challenge.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Verify checks a challenge signature and mints a session. The token goes
// out twice: in the body for API clients and as a cookie for the web app.
func (h *Handlers) Verify(c *gin.Context) {
	var req struct {
		RecoveryKind string `json:"recovery_kind" binding:"required"`
		Identifier   string `json:"identifier" binding:"required"`
		Signature    string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature must be 0x-prefixed hex"})
		return
	}

	token, session, err := h.auth.VerifyChallenge(c.Request.Context(), req.RecoveryKind, req.Identifier, signature)
	if err != nil {
		h.writeError(c, err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt) / time.Second)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, maxAge, "/", h.cookieDomain, true, true)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout clears the session cookie. Tokens are not server-side revocable;
// they simply age out.
func (h *Handlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", h.cookieDomain, true, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated user's account.
func (h *Handlers) Me(c *gin.Context) {
	session := sessionFromContext(c)
	account, err := h.auth.AccountForUser(c.Request.Context(), session.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       account.UserID,
		"name":          account.Name,
		"address":       account.Address.Hex(),
		"chain_address": account.ChainAddress.Hex(),
		"max_signers":   account.MaxSigners,
	})
}

// AddSigner registers a new passkey credential and returns the draft
// operation that installs it on-chain.
func (h *Handlers) AddSigner(c *gin.Context) {
	session := sessionFromContext(c)

	var req struct {
		PublicKey       string `json:"public_key" binding:"required"`
		RawCredentialID string `json:"raw_credential_id" binding:"required"`
		DisplayName     string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	publicKey, err := hexutil.Decode(req.PublicKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Public key must be 0x-prefixed hex"})
		return
	}

	credential, op, err := h.signers.AddSigner(c.Request.Context(), service.AddSignerInput{
		UserID:          session.UserID,
		PublicKey:       publicKey,
		RawCredentialID: req.RawCredentialID,
		DisplayName:     req.DisplayName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credential_id": credential.ID,
		"key_slot":      credential.KeySlot,
		"operation":     op,
	})
}

// RemoveSigner authorizes removal of a key slot with a slot-prefixed
// passkey signature and returns the draft removal operation.
func (h *Handlers) RemoveSigner(c *gin.Context) {
	var req struct {
		Identifier  string `json:"identifier" binding:"required"`
		ChallengeID string `json:"challenge_id" binding:"required"`
		Signature   string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature must be 0x-prefixed hex"})
		return
	}

	op, err := h.signers.AuthorizeRemoval(c.Request.Context(), req.Identifier, req.ChallengeID, signature)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"operation": op})
}

// SubmitOperation relays a signed user operation through the bundler and
// waits for its receipt.
func (h *Handlers) SubmitOperation(c *gin.Context) {
	var req struct {
		Operation json.RawMessage `json:"operation" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	var op userop.UserOperation
	if err := json.Unmarshal(req.Operation, &op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed user operation"})
		return
	}

	receipt, err := h.sender.Submit(c.Request.Context(), &op)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_op_hash":     receipt.UserOpHash.Hex(),
		"transaction_hash": receipt.TransactionHash.Hex(),
		"success":          receipt.Success,
	})
}

// DecodeOperation decodes batch calldata into its calls and the transfer
// one of them carries. A batch with no recognizable transfer, or transfer
// calldata that does not decode, is an error, never a partial result.
func (h *Handlers) DecodeOperation(c *gin.Context) {
	var req struct {
		CallData string `json:"call_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	data, err := hexutil.Decode(req.CallData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Calldata must be 0x-prefixed hex"})
		return
	}

	calls, err := userop.DecodeExecuteBatch(data)
	if err != nil {
		h.writeError(c, err)
		return
	}

	transfer, err := userop.ClassifyTransfer(calls, h.tokens)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calls": calls,
		"transfer": gin.H{
			"token":  transfer.Token,
			"to":     transfer.To.Hex(),
			"amount": transfer.Amount.String(),
			"value":  transfer.Value.String(),
		},
	})
}
