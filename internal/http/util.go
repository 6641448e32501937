package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"hearttrack-data/internal/domain"
)

const maxBodyBytes = 1 << 20 // 1MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// principalFrom 从请求头解析调用主体
// 网关完成认证后透传 X-User-Id / X-User-Role，这里只做取值与角色校验
func principalFrom(r *http.Request) (domain.Principal, bool) {
	p := domain.Principal{
		ID:   r.Header.Get("X-User-Id"),
		Role: domain.Role(r.Header.Get("X-User-Role")),
	}
	return p, p.Valid()
}
