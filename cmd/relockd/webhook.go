// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/relockd/relockd/lib/clock"
	"github.com/relockd/relockd/lib/trigger"
)

// maxDispatchBodySize bounds the dispatch payload. Payloads are a few
// hundred bytes; anything near the limit is garbage.
const maxDispatchBodySize = 64 * 1024

// deduplicationWindow is how long delivery IDs are tracked for replay
// protection. Senders retry within minutes, so an hour is
// conservative.
const deduplicationWindow = 1 * time.Hour

// dispatchPayload is the JSON body of a dispatch request.
type dispatchPayload struct {
	// Repo is the repository the dispatch concerns, "owner/name". Must
	// match the configured target.
	Repo string `json:"repo"`

	// Ref is the branch to regenerate lockfiles onto.
	Ref string `json:"ref"`

	// CommentID is the comment to acknowledge on success.
	CommentID int64 `json:"comment_id"`
}

type dispatchHandlerConfig struct {
	// Secret is the shared HMAC key. Required.
	Secret []byte

	// ExpectedRepo is the configured target in "owner/name" form.
	// Dispatches naming any other repository are rejected.
	ExpectedRepo string

	// Clock supplies deduplication timestamps. Required.
	Clock clock.Clock

	// Logger receives per-request events. Required.
	Logger *slog.Logger

	// OnEvent receives each verified dispatch as a trigger event.
	// Required.
	OnEvent func(trigger.Event)
}

// dispatchHandler ingests dispatch requests over HTTP. It verifies
// HMAC-SHA256 signatures, deduplicates deliveries, and translates
// valid payloads into dispatch trigger events.
type dispatchHandler struct {
	config dispatchHandlerConfig

	// deliveries tracks recently seen X-Relockd-Delivery values for
	// replay protection.
	mu         sync.Mutex
	deliveries map[string]time.Time
}

func newDispatchHandler(config dispatchHandlerConfig) *dispatchHandler {
	if len(config.Secret) == 0 {
		panic("dispatchHandler: secret is required")
	}
	if config.Clock == nil || config.Logger == nil || config.OnEvent == nil {
		panic("dispatchHandler: Clock, Logger, and OnEvent are required")
	}
	return &dispatchHandler{
		config:     config,
		deliveries: make(map[string]time.Time),
	}
}

func (handler *dispatchHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	logger := handler.config.Logger

	if request.Method != http.MethodPost {
		http.Error(writer, "", http.StatusMethodNotAllowed)
		return
	}

	// The raw bytes are needed for HMAC verification before any
	// parsing.
	body, err := io.ReadAll(io.LimitReader(request.Body, maxDispatchBodySize))
	if err != nil {
		logger.Error("dispatch: reading body failed", "error", err)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}
	if len(body) == 0 {
		http.Error(writer, "", http.StatusBadRequest)
		return
	}

	signature := request.Header.Get("X-Relockd-Signature-256")
	if err := verifyHMAC(handler.config.Secret, body, signature); err != nil {
		logger.Warn("dispatch: signature verification failed",
			"error", err,
			"remote_addr", request.RemoteAddr)
		// 401 with no information disclosure.
		http.Error(writer, "", http.StatusUnauthorized)
		return
	}

	deliveryID := request.Header.Get("X-Relockd-Delivery")

	var payload dispatchPayload
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		logger.Warn("dispatch: malformed payload", "delivery_id", deliveryID, "error", err)
		http.Error(writer, "malformed payload", http.StatusBadRequest)
		return
	}
	if payload.Repo != handler.config.ExpectedRepo {
		logger.Warn("dispatch: repository mismatch",
			"delivery_id", deliveryID,
			"repo", payload.Repo)
		http.Error(writer, "unknown repository", http.StatusBadRequest)
		return
	}
	if payload.Ref == "" {
		http.Error(writer, "ref is required", http.StatusBadRequest)
		return
	}

	// Dedupe only accepted deliveries. Recording the ID any earlier
	// would let a malformed first attempt suppress the sender's
	// corrected retry under the same ID.
	if deliveryID != "" && handler.isDuplicate(deliveryID) {
		logger.Debug("dispatch: duplicate delivery, ignoring", "delivery_id", deliveryID)
		// 200 so the sender does not retry.
		writer.WriteHeader(http.StatusOK)
		return
	}

	logger.Info("dispatch received",
		"delivery_id", deliveryID,
		"ref", payload.Ref,
		"comment_id", payload.CommentID)

	handler.config.OnEvent(trigger.Event{
		Kind: trigger.Dispatch,
		Origin: trigger.Origin{
			Repo:      payload.Repo,
			Ref:       payload.Ref,
			CommentID: payload.CommentID,
		},
	})
	writer.WriteHeader(http.StatusAccepted)
}

// isDuplicate records the delivery ID and reports whether it was seen
// within the deduplication window. Expired entries are pruned on each
// call.
func (handler *dispatchHandler) isDuplicate(deliveryID string) bool {
	now := handler.config.Clock.Now()

	handler.mu.Lock()
	defer handler.mu.Unlock()

	for id, seen := range handler.deliveries {
		if now.Sub(seen) > deduplicationWindow {
			delete(handler.deliveries, id)
		}
	}

	if _, seen := handler.deliveries[deliveryID]; seen {
		return true
	}
	handler.deliveries[deliveryID] = now
	return false
}

// verifyHMAC checks an HMAC-SHA256 signature in "sha256=<hex>" form
// against the body.
func verifyHMAC(secret, body []byte, signature string) error {
	if signature == "" {
		return errors.New("signature is empty")
	}
	hexSignature := strings.TrimPrefix(signature, "sha256=")
	signatureBytes, err := hex.DecodeString(hexSignature)
	if err != nil {
		return fmt.Errorf("invalid hex signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, signatureBytes) != 1 {
		return errors.New("signature mismatch")
	}
	return nil
}
