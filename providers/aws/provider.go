// Package aws implements the siivo CloudProvider on EC2 block storage.
package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/yairfalse/siivo/providers"
	"github.com/yairfalse/siivo/types"
)

func init() {
	providers.RegisterProvider("aws", NewProviderFactory)
}

// NewProviderFactory creates an AWS provider for the registry
func NewProviderFactory(ctx context.Context, config providers.ProviderConfig) (providers.CloudProvider, error) {
	return NewProvider(ctx, config)
}

// Provider implements CloudProvider using AWS SDK v2. Each AWS region
// is presented as one cloud; EBS supports both kinds everywhere.
type Provider struct {
	cfg     aws.Config
	regions []string
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*ec2.Client
}

// NewProvider creates a new AWS provider. config.Regions is an
// allowlist; empty means every enabled region.
func NewProvider(ctx context.Context, config providers.ProviderConfig) (*Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(config.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	return &Provider{
		cfg:     cfg,
		regions: config.Regions,
		timeout: config.RequestTimeout,
		clients: make(map[string]*ec2.Client),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "aws"
}

// ListClouds returns enabled regions, filtered by the allowlist
func (p *Provider) ListClouds(ctx context.Context) ([]types.Cloud, error) {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	output, err := p.client(p.cfg.Region).DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	var clouds []types.Cloud
	for _, region := range output.Regions {
		name := aws.ToString(region.RegionName)
		if !p.regionAllowed(name) {
			continue
		}
		clouds = append(clouds, types.Cloud{
			ID:                name,
			Name:              name,
			SupportsVolumes:   true,
			SupportsSnapshots: true,
		})
	}

	return clouds, nil
}

// Delete removes a volume or snapshot by kind
func (p *Provider) Delete(ctx context.Context, rec types.Record) error {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	client := p.client(rec.Region)

	switch rec.Kind {
	case types.KindVolume:
		_, err := client.DeleteVolume(ctx, &ec2.DeleteVolumeInput{
			VolumeId: aws.String(rec.ID),
		})
		if err != nil {
			return fmt.Errorf("delete volume %s: %w", rec.ID, err)
		}
	case types.KindSnapshot:
		_, err := client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{
			SnapshotId: aws.String(rec.ID),
		})
		if err != nil {
			return fmt.Errorf("delete snapshot %s: %w", rec.ID, err)
		}
	default:
		return fmt.Errorf("unknown resource kind %q", rec.Kind)
	}

	return nil
}

func (p *Provider) regionAllowed(name string) bool {
	if len(p.regions) == 0 {
		return true
	}
	for _, r := range p.regions {
		if r == name {
			return true
		}
	}
	return false
}

// client returns a cached EC2 client for a region
func (p *Provider) client(region string) *ec2.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[region]; ok {
		return c
	}

	c := ec2.NewFromConfig(p.cfg, func(o *ec2.Options) {
		o.Region = region
	})
	p.clients[region] = c
	return c
}

// callContext bounds a single remote call when a timeout is configured
func (p *Provider) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}
