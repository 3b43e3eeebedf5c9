package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// DefaultParameterPath is where recovery parameters live
const DefaultParameterPath = "/dr-lab/recovery"

// ParameterStore reads recovery parameters from SSM
type ParameterStore struct {
	client ssm.GetParametersByPathAPIClient
}

func NewParameterStore(client ssm.GetParametersByPathAPIClient) *ParameterStore {
	return &ParameterStore{client: client}
}

// Load returns every parameter under path keyed by its name relative to
// path, e.g. "secondary_region" or "app/desired_count".
func (p *ParameterStore) Load(ctx context.Context, path string) (map[string]string, error) {
	if path == "" {
		path = DefaultParameterPath
	}
	prefix := strings.TrimSuffix(path, "/") + "/"

	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(p.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			name := strings.TrimPrefix(aws.ToString(param.Name), prefix)
			params[name] = aws.ToString(param.Value)
		}
	}
	return params, nil
}
