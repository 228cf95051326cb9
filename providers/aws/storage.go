package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/siivo/types"
)

// ListVolumes discovers EBS volumes in a region
func (p *Provider) ListVolumes(ctx context.Context, cloudID string) ([]types.Record, error) {
	var records []types.Record
	paginator := ec2.NewDescribeVolumesPaginator(p.client(cloudID), &ec2.DescribeVolumesInput{})

	for paginator.HasMorePages() {
		pageCtx, cancel := p.callContext(ctx)
		output, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list EBS volumes: %w", err)
		}

		for _, volume := range output.Volumes {
			records = append(records, normalizeVolume(cloudID, volume))
		}
	}

	return records, nil
}

// ListSnapshots discovers self-owned EBS snapshots in a region
func (p *Provider) ListSnapshots(ctx context.Context, cloudID string) ([]types.Record, error) {
	var records []types.Record
	paginator := ec2.NewDescribeSnapshotsPaginator(p.client(cloudID), &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})

	for paginator.HasMorePages() {
		pageCtx, cancel := p.callContext(ctx)
		output, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}

		for _, snapshot := range output.Snapshots {
			records = append(records, normalizeSnapshot(cloudID, snapshot))
		}
	}

	return records, nil
}

// normalizeVolume maps one EBS volume into the canonical record shape.
// This is the only place volume field names are translated; the filter
// never sees provider shapes.
func normalizeVolume(region string, volume ec2types.Volume) types.Record {
	id := aws.ToString(volume.VolumeId)
	tags := convertTags(volume.Tags)

	return types.Record{
		ID:        id,
		ManagedID: region + "/" + id,
		Kind:      types.KindVolume,
		Cloud:     region,
		Region:    region,
		Status:    string(volume.State),
		Nickname:  tags["Name"],
		Tags:      tags,
		CreatedAt: formatTime(volume.CreateTime),
		UpdatedAt: latestAttachTime(volume.Attachments),
	}
}

// normalizeSnapshot maps one EBS snapshot into the canonical record
// shape. Snapshots report StartTime as their creation instant.
func normalizeSnapshot(region string, snapshot ec2types.Snapshot) types.Record {
	id := aws.ToString(snapshot.SnapshotId)
	tags := convertTags(snapshot.Tags)

	return types.Record{
		ID:          id,
		ManagedID:   region + "/" + id,
		Kind:        types.KindSnapshot,
		Cloud:       region,
		Region:      region,
		Status:      string(snapshot.State),
		Nickname:    tags["Name"],
		Description: aws.ToString(snapshot.Description),
		Tags:        tags,
		CreatedAt:   formatTime(snapshot.StartTime),
	}
}

func convertTags(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return m
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// latestAttachTime is the fallback timestamp for volumes whose
// CreateTime the API did not report
func latestAttachTime(attachments []ec2types.VolumeAttachment) string {
	var latest *time.Time
	for _, att := range attachments {
		if att.AttachTime == nil {
			continue
		}
		if latest == nil || att.AttachTime.After(*latest) {
			latest = att.AttachTime
		}
	}
	return formatTime(latest)
}
