package config

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// getParametersLimit is the number of names GetParameters accepts per call.
const getParametersLimit = 10

type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider reads parameters from Parameter Store, decrypting SecureString
// values.
type SSMProvider struct {
	connect func(ctx context.Context) (ssmClient, error)
}

// NewSSMProvider returns a provider for region. A non-empty endpoint replaces
// the service endpoint, as used against LocalStack.
func NewSSMProvider(region, endpoint string) *SSMProvider {
	return &SSMProvider{connect: func(ctx context.Context) (ssmClient, error) {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("parameter store client for %s: %w", region, err)
		}
		return ssm.NewFromConfig(cfg, func(o *ssm.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}), nil
	}}
}

func newSSMProviderWithClient(client ssmClient) *SSMProvider {
	return &SSMProvider{connect: func(context.Context) (ssmClient, error) { return client, nil }}
}

// GetParametersBatch resolves every key or fails. Names unknown to Parameter
// Store are collected over all calls and reported together.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}

	var missing []string
	for names := range slices.Chunk(keys, getParametersLimit) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reading parameters: %w", err)
		}
		out, err := client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("get parameters [%s]: %w", strings.Join(names, " "), err)
		}
		for _, param := range out.Parameters {
			values[aws.ToString(param.Name)] = aws.ToString(param.Value)
		}
		missing = append(missing, out.InvalidParameters...)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("parameters not found: %s", strings.Join(missing, ", "))
	}
	return values, nil
}
