package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"character-chat/internal/domain"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Client resolves chat configuration names against SSM Parameter Store.
//
// Names use the KV layout ("character:A", "global_prompt"); each colon
// becomes a path separator under the prefix, so "character:A" is read from
// "{prefix}/character/A".
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client with the given SSM API implementation and path
// prefix. An empty prefix reads names from the root.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, prefix: strings.TrimRight(strings.TrimSpace(prefix), "/")}, nil
}

// ParameterPath maps a configuration name to its SSM path.
func (c *Client) ParameterPath(name string) string {
	return c.prefix + "/" + strings.ReplaceAll(strings.Trim(name, ":/"), ":", "/")
}

// GetParameter returns the decrypted value. A missing parameter is reported
// by wrapping domain.ErrNotFound.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	path := c.ParameterPath(name)
	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &path,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("paramstore: parameter %q: %w", path, domain.ErrNotFound)
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", path, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value: %w", path, domain.ErrNotFound)
	}
	return *out.Parameter.Value, nil
}
