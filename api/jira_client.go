package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jiratojira/config"
	"jiratojira/models"
)

// maxBodyDetail はエラー記録に保存するレスポンスボディの最大長です
const maxBodyDetail = 500

// transportRetries はトランスポート障害時の最大再送回数です
const transportRetries = 2

// StatusError は成功以外のHTTPステータスを表します
// プロトコル障害（非2xx）とトランスポート障害を呼び出し側で区別するために使います
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// newStatusError はレスポンスからStatusErrorを構築します（ボディは切り詰め）
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(resp.Body)
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       Truncate(string(body), maxBodyDetail),
	}
}

// Truncate は文字列を最大長に切り詰めます
func Truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// JiraClient はJIRA APIとのやり取りを処理します
type JiraClient struct {
	baseURL  string
	username string
	password string

	// メタデータ取得用と添付ファイル転送用でタイムアウトを分けています
	client        *http.Client
	contentClient *http.Client
}

// NewJiraClient は新しいJIRAクライアントを作成します
func NewJiraClient(baseURL, username, password string, requestTimeout, contentTimeout time.Duration) *JiraClient {
	return &JiraClient{
		baseURL:       baseURL,
		username:      username,
		password:      password,
		client:        &http.Client{Timeout: requestTimeout},
		contentClient: &http.Client{Timeout: contentTimeout},
	}
}

// NewSourceClient は移行元JIRA用のクライアントを作成します
func NewSourceClient(cfg *config.Config) *JiraClient {
	return NewJiraClient(cfg.SourceURL, cfg.SourceUsername, cfg.SourcePassword, cfg.RequestTimeout, cfg.ContentTimeout)
}

// NewTargetClient は移行先JIRA用のクライアントを作成します
func NewTargetClient(cfg *config.Config) *JiraClient {
	return NewJiraClient(cfg.TargetURL, cfg.TargetUsername, cfg.TargetPassword, cfg.RequestTimeout, cfg.ContentTimeout)
}

// do はリクエストを送信します
// トランスポート障害は指数バックオフ付きで再送し、それでも失敗した場合にエラーを返します
// 成功以外のステータスコードは再送しません（呼び出し側で記録するため）
func (j *JiraClient) do(client *http.Client, method, requestURL string, body []byte, headers map[string]string) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequest(method, requestURL, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("リクエスト作成エラー: %w", err))
		}

		req.SetBasicAuth(j.username, j.password)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		r, err := client.Do(req)
		if err != nil {
			return err // トランスポート障害は再送対象
		}

		resp = r
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), transportRetries)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("リクエスト送信エラー: %w", err)
	}

	return resp, nil
}

// CheckAuth はJIRA認証をチェックします
func (j *JiraClient) CheckAuth() error {
	resp, err := j.do(j.client, "GET", fmt.Sprintf("%s/rest/api/2/myself", j.baseURL), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("認証失敗: %w", newStatusError(resp))
	}

	return nil
}

// CreateIssue はJIRAイシューを作成し、新しいイシューキーを返します
// 成功の判定は201 Createdです
func (j *JiraClient) CreateIssue(fields map[string]interface{}) (string, error) {
	payload := map[string]interface{}{"fields": fields}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	resp, err := j.do(j.client, "POST", fmt.Sprintf("%s/rest/api/2/issue", j.baseURL),
		payloadBytes, map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", newStatusError(resp)
	}

	var result struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	if result.Key == "" {
		return "", fmt.Errorf("イシューキーが見つかりません")
	}

	return result.Key, nil
}

// GetIssue はイシューの詳細を取得します
func (j *JiraClient) GetIssue(issueKey string) (*models.SourceIssue, error) {
	resp, err := j.do(j.client, "GET", fmt.Sprintf("%s/rest/api/2/issue/%s", j.baseURL, issueKey), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var issue models.SourceIssue
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	return &issue, nil
}

// IssueExists はイシューが存在するかどうかを返します
func (j *JiraClient) IssueExists(issueKey string) bool {
	resp, err := j.do(j.client, "GET", fmt.Sprintf("%s/rest/api/2/issue/%s", j.baseURL, issueKey), nil, nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// GetComments はイシューの全コメントを取得します
func (j *JiraClient) GetComments(issueKey string) ([]models.Comment, error) {
	resp, err := j.do(j.client, "GET", fmt.Sprintf("%s/rest/api/2/issue/%s/comment", j.baseURL, issueKey), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var result struct {
		Comments []models.Comment `json:"comments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	return result.Comments, nil
}

// AddComment はイシューにコメントを追加します
// 成功の判定は201 Createdです
func (j *JiraClient) AddComment(issueKey string, comment map[string]interface{}) error {
	payloadBytes, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	resp, err := j.do(j.client, "POST", fmt.Sprintf("%s/rest/api/2/issue/%s/comment", j.baseURL, issueKey),
		payloadBytes, map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return newStatusError(resp)
	}

	return nil
}

// GetAttachments はイシューの添付ファイルメタデータを取得します
func (j *JiraClient) GetAttachments(issueKey string) ([]models.Attachment, error) {
	resp, err := j.do(j.client, "GET",
		fmt.Sprintf("%s/rest/api/2/issue/%s?fields=attachment", j.baseURL, issueKey), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var result struct {
		Fields struct {
			Attachment []models.Attachment `json:"attachment"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	return result.Fields.Attachment, nil
}

// DownloadAttachment は移行元が提供するURLから添付ファイルをダウンロードします
func (j *JiraClient) DownloadAttachment(contentURL string) ([]byte, error) {
	resp, err := j.do(j.contentClient, "GET", contentURL, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ダウンロード読み取りエラー: %w", err)
	}

	return data, nil
}

// UploadAttachment はJIRAイシューに添付ファイルをアップロードします
// イシュー作成と異なり、成功の判定は200 OKです（JIRA API側の非対称性）
func (j *JiraClient) UploadAttachment(issueKey, filename string, data []byte) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("multipartフォーム作成エラー: %w", err)
	}

	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("ファイルコピーエラー: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("writerクローズエラー: %w", err)
	}

	resp, err := j.do(j.contentClient, "POST",
		fmt.Sprintf("%s/rest/api/2/issue/%s/attachments", j.baseURL, issueKey),
		body.Bytes(), map[string]string{
			"Content-Type":      writer.FormDataContentType(),
			"X-Atlassian-Token": "no-check",
		})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newStatusError(resp)
	}

	return nil
}

// SearchCount はJQLに一致するイシューの総数を取得します
func (j *JiraClient) SearchCount(jql string) (int, error) {
	requestURL := fmt.Sprintf("%s/rest/api/2/search?jql=%s&maxResults=0", j.baseURL, url.QueryEscape(jql))

	resp, err := j.do(j.client, "GET", requestURL, nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, newStatusError(resp)
	}

	var result struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	return result.Total, nil
}

// SearchIssues はJQLに一致するイシューをページ単位で取得します
func (j *JiraClient) SearchIssues(jql string, startAt, maxResults int, expand string) ([]models.SourceIssue, error) {
	requestURL := fmt.Sprintf("%s/rest/api/2/search?jql=%s&startAt=%d&maxResults=%d",
		j.baseURL, url.QueryEscape(jql), startAt, maxResults)
	if expand != "" {
		requestURL += "&expand=" + url.QueryEscape(expand)
	}

	resp, err := j.do(j.client, "GET", requestURL, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var result struct {
		Issues []models.SourceIssue `json:"issues"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("レスポンス解析エラー: %w", err)
	}

	return result.Issues, nil
}
