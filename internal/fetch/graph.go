package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jonathan/docmeta/internal/types"
)

// GraphScope is the client-credentials scope for Microsoft Graph.
const GraphScope = "https://graph.microsoft.com/.default"

// TokenExpiryBuffer is how long before expiry a cached Graph token is replaced.
const TokenExpiryBuffer = 5 * time.Minute

// GraphCredentials identifies an Azure AD application.
type GraphCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL overrides the tenant token endpoint.
	TokenURL string
}

// NewGraphTokenSource returns a token source for the client-credentials flow
// that reuses a token until TokenExpiryBuffer before it expires.
func NewGraphTokenSource(ctx context.Context, creds GraphCredentials) oauth2.TokenSource {
	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(creds.TenantID))
	}
	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{GraphScope},
	}
	// cfg.TokenSource caches with its own short expiry window, so the reuse
	// wrapper sits directly on a source that always requests a new token.
	return oauth2.ReuseTokenSourceWithExpiry(nil, freshTokenSource{ctx: ctx, cfg: cfg}, TokenExpiryBuffer)
}

type freshTokenSource struct {
	ctx context.Context
	cfg *clientcredentials.Config
}

func (s freshTokenSource) Token() (*oauth2.Token, error) {
	return s.cfg.Token(s.ctx)
}

type graphPage struct {
	Value []struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Size   int64           `json:"size"`
		Folder json.RawMessage `json:"folder"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// listGraphFolder lists the PDF children of a drive folder URL of the form
// <drive>/root:/<folder>, following @odata.nextLink.
func (f *Fetcher) listGraphFolder(ctx context.Context, folderURL string) ([]types.DocumentDescriptor, error) {
	idx := strings.Index(folderURL, "/drive/root:")
	driveBase := folderURL[:idx+len("/drive")]
	next := childrenURL(folderURL)

	var docs []types.DocumentDescriptor
	for pages := 0; next != ""; pages++ {
		if pages >= 1000 {
			return nil, &Error{URL: folderURL, Message: "too many result pages"}
		}

		var page graphPage
		if err := f.getGraphJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			if len(item.Folder) > 0 || !isPDF(item.Name) {
				continue
			}
			docs = append(docs, types.DocumentDescriptor{
				Name:     item.Name,
				Location: driveBase + "/items/" + url.PathEscape(item.ID) + "/content",
				Kind:     types.SourceDrive,
				Size:     item.Size,
			})
		}
		next = page.NextLink
		if next != "" {
			f.logger.Debug().Int("documents", len(docs)).Msg("fetching next page of drive items")
		}
	}
	return docs, nil
}

func (f *Fetcher) getGraphJSON(ctx context.Context, rawURL string, v any) error {
	token, err := f.graphToken()
	if err != nil {
		return &Error{URL: rawURL, Message: "failed to obtain Graph token", Cause: err}
	}
	resp, err := f.get(ctx, rawURL, token)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &Error{URL: rawURL, Message: "invalid Graph response", Cause: err}
	}
	return nil
}

func (f *Fetcher) graphToken() (string, error) {
	if f.graphTokens == nil {
		return "", fmt.Errorf("graph credentials not configured")
	}
	tok, err := f.graphTokens.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func childrenURL(folderURL string) string {
	u := strings.TrimRight(folderURL, "/")
	switch {
	case strings.HasSuffix(u, ":/children"):
		return u
	case strings.HasSuffix(u, ":"):
		return u + "/children"
	default:
		return u + ":/children"
	}
}

// driveItemName names a single drive item URL such as .../items/{id}/content.
func driveItemName(u *url.URL) string {
	p := strings.TrimSuffix(u.Path, "/content")
	name := path.Base(p)
	if !isPDF(name) {
		name += ".pdf"
	}
	return name
}
