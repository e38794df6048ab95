package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/skinversity/storefront-go/pkg/contracts"
)

// HTTPSender invokes a hosted function at {BaseURL}/functions/{name}.
type HTTPSender struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (s *HTTPSender) Send(ctx context.Context, name string, n Notification) error {
	body, err := json.Marshal(n.Payload())
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/functions/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("function %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var reply contracts.NotifyOrderReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("function %s: decode reply: %w", name, err)
	}
	return nil
}
