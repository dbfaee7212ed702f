package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"file-drop/pkg/errs"
	"file-drop/pkg/models"
)

// Client talks to a GoFile-style file host.
type Client struct {
	apiURL    string
	uploadURL string
	token     string
	http      *http.Client
	now       func() time.Time
}

func NewClient(apiURL, uploadURL, token string, timeout time.Duration) *Client {
	return &Client{
		apiURL:    strings.TrimRight(apiURL, "/"),
		uploadURL: uploadURL,
		token:     token,
		http:      &http.Client{Timeout: timeout},
		now:       time.Now,
	}
}

// envelope is the host's response shape for every endpoint.
type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type uploadData struct {
	DownloadPage string `json:"downloadPage"`
	FileID       string `json:"fileId"`
	FileName     string `json:"fileName"`
	AdminCode    string `json:"adminCode"`
	GuestToken   string `json:"guestToken"`
}

// Upload streams r to the host as name and returns the resulting descriptor.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*models.HostedUpload, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		pr.Close()
		return nil, errs.New(errs.TransportFailed, "upload", name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var data uploadData
	if err := c.do(req, "upload", name, &data); err != nil {
		return nil, err
	}

	adminCode := data.AdminCode
	if adminCode == "" {
		adminCode = data.GuestToken
	}
	fileName := data.FileName
	if fileName == "" {
		fileName = name
	}
	return &models.HostedUpload{
		FileURL:    data.DownloadPage,
		FileName:   fileName,
		FileID:     data.FileID,
		AdminCode:  adminCode,
		UploadedAt: c.now().UTC(),
	}, nil
}

// Delete removes a file from the host using the admin code issued at upload.
func (c *Client) Delete(ctx context.Context, fileID, adminCode string) error {
	body, err := json.Marshal(map[string]string{"contentId": fileID, "adminCode": adminCode})
	if err != nil {
		return errs.New(errs.TransportFailed, "delete content", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.apiURL+"/deleteContent", bytes.NewReader(body))
	if err != nil {
		return errs.New(errs.TransportFailed, "delete content", fileID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "delete content", fileID, nil)
}

func (c *Client) do(req *http.Request, op, subject string, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.New(errs.TransportFailed, op, subject, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errs.New(errs.TransportFailed, op, subject, fmt.Errorf("failed to read response: %w", err))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return errs.New(errs.BackendRejected, op, subject,
				fmt.Errorf("host returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
		}
		return errs.New(errs.TransportFailed, op, subject, fmt.Errorf("failed to decode response: %w", err))
	}

	if env.Status != "ok" {
		msg := env.Error
		if msg == "" {
			msg = env.Status
		}
		if msg == "" {
			msg = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
		}
		return errs.New(errs.BackendRejected, op, subject, fmt.Errorf("%s", msg))
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errs.New(errs.TransportFailed, op, subject, fmt.Errorf("failed to decode response data: %w", err))
		}
	}
	return nil
}
