package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering the two methods
// the dialog uses.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     *slog.Logger
}

// NewClient creates a Telegram client for the given bot token.
func NewClient(token string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: defaultAPIBase,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// NewClientWithBase creates a client against a non-standard API base,
// for tests and local API servers.
func NewClientWithBase(token, baseURL string, log *slog.Logger) *Client {
	c := NewClient(token, log)
	c.baseURL = baseURL
	return c
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage sends a plain-text reply to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "sendMessage")
}

// SendPhoto uploads a photo to a chat with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, filename string, photo []byte, caption string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("failed to write chat_id: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption: %w", err)
		}
	}
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return fmt.Errorf("failed to create photo part: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("failed to write photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, "sendPhoto")
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) do(req *http.Request, method string) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return fmt.Errorf("telegram %s returned status %d with unparseable body", method, resp.StatusCode)
	}
	if !api.OK {
		return fmt.Errorf("telegram %s rejected: %s", method, api.Description)
	}
	return nil
}
