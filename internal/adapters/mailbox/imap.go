package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/utils"
	"go.uber.org/zap"
)

// Client implements the core.Mailbox interface over IMAP/IMAPS. One Client
// holds one authenticated session.
type Client struct {
	cfg    config.IMAPConfig
	client *imapclient.Client
	text   *utils.TextProcessor
	snip   int
	logger *zap.Logger

	mu       sync.Mutex
	uids     map[string]imap.UID
	selected string
}

// Dial connects and authenticates against the configured IMAP server.
// snippetSize caps the body snippet taken from each message.
func Dial(cfg config.IMAPConfig, text *utils.TextProcessor, snippetSize int, logger *zap.Logger) (*Client, error) {
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))

	var client *imapclient.Client
	var err error
	if cfg.UseTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: cfg.Server},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login %s: %w", cfg.Username, err)
	}

	logger.Info("Connected to IMAP server",
		zap.String("server", addr),
		zap.String("username", cfg.Username))

	return &Client{
		cfg:    cfg,
		client: client,
		text:   text,
		snip:   snippetSize,
		logger: logger,
		uids:   make(map[string]imap.UID),
	}, nil
}

// Close logs out and drops the connection.
func (c *Client) Close() error {
	if err := c.client.Logout().Wait(); err != nil {
		c.client.Close()
		return fmt.Errorf("imap logout: %w", err)
	}
	return c.client.Close()
}

// ListFolders returns all folder paths in the mailbox.
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mailboxes, err := c.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap list: %w", err)
	}

	folders := make([]string, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		folders = append(folders, mbox.Mailbox)
	}
	return folders, nil
}

// Fetch returns up to limit candidate emails from a folder, most recent
// last. Snapshots are read-only; bodies are reduced to bounded snippets.
func (c *Client) Fetch(ctx context.Context, folder string, limit int) ([]*core.Email, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{}
	if c.cfg.SinceDays > 0 {
		criteria.Since = time.Now().AddDate(0, 0, -c.cfg.SinceDays)
	}
	searchData, err := c.client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search %s: %w", folder, err)
	}

	seqNums := searchData.AllSeqNums()
	if len(seqNums) == 0 {
		c.logger.Info("No messages found", zap.String("folder", folder))
		return nil, nil
	}
	if limit > 0 && len(seqNums) > limit {
		// Sequence numbers ascend with age; keep the newest.
		seqNums = seqNums[len(seqNums)-limit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	buffers, err := c.client.Fetch(imap.SeqSetNum(seqNums...), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", folder, err)
	}

	emails := make([]*core.Email, 0, len(buffers))
	for _, buf := range buffers {
		email := c.buildEmail(buf, folder)
		if email == nil {
			continue
		}
		c.mu.Lock()
		c.uids[email.ID] = buf.UID
		c.mu.Unlock()
		emails = append(emails, email)
	}

	c.logger.Info("Fetched candidate emails",
		zap.String("folder", folder),
		zap.Int("count", len(emails)))
	return emails, nil
}

// Move files an email into the destination folder. The server falls back to
// copy+expunge when MOVE is unsupported; imapclient handles that.
func (c *Client) Move(ctx context.Context, email *core.Email, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	uid, ok := c.uids[email.ID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown email %s: not fetched in this session", email.ID)
	}

	uidSet := imap.UIDSetNum(uid)
	if _, err := c.client.Move(uidSet, folder).Wait(); err != nil {
		return fmt.Errorf("imap move to %s: %w", folder, err)
	}

	c.logger.Debug("Moved email",
		zap.String("sender", email.From),
		zap.String("folder", folder))
	return nil
}

func (c *Client) selectFolder(folder string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == folder {
		return nil
	}
	if _, err := c.client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", folder, err)
	}
	c.selected = folder
	return nil
}

func (c *Client) buildEmail(buf *imapclient.FetchMessageBuffer, folder string) *core.Email {
	if buf.Envelope == nil {
		c.logger.Warn("Skipping message without envelope", zap.Uint32("seq", buf.SeqNum))
		return nil
	}

	from := formatAddress(buf.Envelope.From)
	subject := buf.Envelope.Subject
	date := buf.Envelope.Date

	raw := buf.FindBodySection(bodySectionKey)
	body := extractPlainText(raw)

	return &core.Email{
		ID:      core.EmailFingerprint(subject, from, date),
		From:    from,
		Subject: subject,
		Snippet: c.text.Snippet(body, c.snip),
		Folder:  folder,
		Date:    date,
	}
}

var bodySectionKey = &imap.FetchItemBodySection{Peek: true}

func formatAddress(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	addr := addrs[0]
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}

// extractPlainText returns the first text/plain part of a MIME message, or
// the raw bytes when the message cannot be parsed.
func extractPlainText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if header, ok := part.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := header.ContentType()
			if contentType == "text/plain" {
				text, err := io.ReadAll(part.Body)
				if err != nil {
					break
				}
				return string(text)
			}
		}
	}
	return string(raw)
}
