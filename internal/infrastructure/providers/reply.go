package providers

import (
	"encoding/json"
	"net/http"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

func TextReply(status int, body string) *domain.CallbackReply {
	return &domain.CallbackReply{StatusCode: status, ContentType: "text/plain; charset=utf-8", Body: []byte(body)}
}

func JSONReply(status int, v any) *domain.CallbackReply {
	body, err := json.Marshal(v)
	if err != nil {
		return TextReply(http.StatusInternalServerError, "encode reply")
	}
	return &domain.CallbackReply{StatusCode: status, ContentType: "application/json", Body: body}
}
