// Package storage хранит ответы по именованным поколениям кэша
package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StoredResponse сохраненная копия HTTP ответа
type StoredResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Cache одно поколение кэша. Ключ запроса это path?query того же origin.
type Cache interface {
	// Match возвращает ответ или nil, nil если ключа нет
	Match(ctx context.Context, key string) (*StoredResponse, error)
	// Put перезаписывает ответ по ключу
	Put(ctx context.Context, key string, resp *StoredResponse) error
	Keys(ctx context.Context) ([]string, error)
}

// CacheStorage набор поколений
type CacheStorage interface {
	// Open открывает поколение, создавая его при необходимости
	Open(ctx context.Context, name string) (Cache, error)
	// Keys возвращает имена поколений в порядке создания
	Keys(ctx context.Context) ([]string, error)
	// Delete удаляет поколение; false если его не было
	Delete(ctx context.Context, name string) (bool, error)
	// Match ищет ключ во всех поколениях в порядке создания
	Match(ctx context.Context, key string) (*StoredResponse, error)
}

// Clear удаляет все поколения и возвращает их число
func Clear(ctx context.Context, cs CacheStorage) (int, error) {
	names, err := cs.Keys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		ok, err := cs.Delete(ctx, name)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Clone возвращает независимую копию
func (r *StoredResponse) Clone() *StoredResponse {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

// OK сообщает, что статус 2xx
func (r *StoredResponse) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Response собирает http.Response для запроса req
func (r *StoredResponse) Response(req *http.Request) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(r.Body)))

	return &http.Response{
		Status:        strconv.Itoa(r.Status) + " " + http.StatusText(r.Status),
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// hopHeaders не сохраняются вместе с ответом
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Set-Cookie",
}

// ReadResponse читает тело ответа целиком и закрывает его
func ReadResponse(resp *http.Response, now time.Time) (*StoredResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}

	return &StoredResponse{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: now,
	}, nil
}
