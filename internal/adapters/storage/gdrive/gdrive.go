package gdrive

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
)

const Name = "gdrive"

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// FolderID is optional; uploads land in the Drive root when empty.
	FolderID string
	// RemoveLocal deletes the local artifact after a successful upload.
	RemoveLocal bool
}

// OAuthConfig returns the OAuth2 client config scoped to files the app creates.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
}

// Client implements ports.StoragePlugin backed by Google Drive. The Drive
// file id is recorded in the generation location.
type Client struct {
	srv         *drive.Service
	folderID    string
	removeLocal bool
}

func NewClient(srv *drive.Service, folderID string, removeLocal bool) *Client {
	return &Client{srv: srv, folderID: folderID, removeLocal: removeLocal}
}

// New authenticates with a long-lived refresh token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	switch {
	case cfg.ClientID == "":
		return nil, errors.Configuration("gdrive: client id is required")
	case cfg.ClientSecret == "":
		return nil, errors.Configuration("gdrive: client secret is required")
	case cfg.RefreshToken == "":
		return nil, errors.Configuration("gdrive: refresh token is required")
	}

	conf := OAuthConfig(cfg.ClientID, cfg.ClientSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "gdrive.new", "create drive service")
	}
	return NewClient(srv, cfg.FolderID, cfg.RemoveLocal), nil
}

func (c *Client) Name() string { return Name }

func (c *Client) Upload(ctx context.Context, localPath string, job *models.Job) (models.Location, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return models.Location{}, errors.WrapWithCode(err, errors.CodeStorage, "gdrive.upload", "open artifact")
	}
	defer f.Close()

	file := &drive.File{
		Name:          filepath.Base(localPath),
		Description:   job.URL,
		AppProperties: map[string]string{"job_id": job.ID},
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	created, err := c.srv.Files.Create(file).
		Media(f, googleapi.ContentType("application/pdf")).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return models.Location{}, errors.WrapWithCode(err, errors.CodeStorage, "gdrive.upload", "drive upload failed").
			WithField("job_id", job.ID)
	}

	if c.removeLocal {
		f.Close()
		_ = os.Remove(localPath)
	}

	return models.Location{Provider: Name, FileID: created.Id}, nil
}
