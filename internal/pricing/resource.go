package pricing

import (
	"fmt"
	"strings"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

type ResourceType string

const (
	ResourceTypeCompute ResourceType = "compute"
	ResourceTypeVolume  ResourceType = "volume"
)

// ParseResourceType accepts the lower or upper case token.
func ParseResourceType(s string) (ResourceType, error) {
	switch ResourceType(strings.ToLower(strings.TrimSpace(s))) {
	case ResourceTypeCompute:
		return ResourceTypeCompute, nil
	case ResourceTypeVolume:
		return ResourceTypeVolume, nil
	default:
		return "", ierr.NewErrorf("unknown resource type %q", s).
			WithHint("resource type must be compute or volume").
			Mark(ierr.ErrValidation)
	}
}

// ResourceItem is the priced shape of a resource. The set of implementations
// is closed: ComputeItem and VolumeItem. Items compare by value and are
// usable as map keys.
type ResourceItem interface {
	Type() ResourceType
	// Key is a stable textual identity, equal for structurally equal items.
	Key() string
	String() string

	resourceItem()
}

type ComputeItem struct {
	VCPU int
	RAM  int
}

// NewComputeItem validates the shape of a compute item.
func NewComputeItem(vcpu, ram int) (ComputeItem, error) {
	if vcpu < 0 {
		return ComputeItem{}, ierr.NewErrorf("negative vcpu %d", vcpu).Mark(ierr.ErrValidation)
	}
	if ram < 0 {
		return ComputeItem{}, ierr.NewErrorf("negative ram %d", ram).Mark(ierr.ErrValidation)
	}
	return ComputeItem{VCPU: vcpu, RAM: ram}, nil
}

func (ComputeItem) Type() ResourceType { return ResourceTypeCompute }
func (c ComputeItem) Key() string      { return fmt.Sprintf("compute-%d-%d", c.VCPU, c.RAM) }
func (c ComputeItem) String() string   { return fmt.Sprintf("compute{vcpu:%d, ram:%d}", c.VCPU, c.RAM) }
func (ComputeItem) resourceItem()      {}

type VolumeItem struct {
	Size int
}

// NewVolumeItem validates the shape of a volume item.
func NewVolumeItem(size int) (VolumeItem, error) {
	if size < 0 {
		return VolumeItem{}, ierr.NewErrorf("negative volume size %d", size).Mark(ierr.ErrValidation)
	}
	return VolumeItem{Size: size}, nil
}

func (VolumeItem) Type() ResourceType { return ResourceTypeVolume }
func (v VolumeItem) Key() string      { return fmt.Sprintf("volume-%d", v.Size) }
func (v VolumeItem) String() string   { return fmt.Sprintf("volume{size:%d}", v.Size) }
func (VolumeItem) resourceItem()      {}

// ItemSpec is the flat serialized form of a ResourceItem.
type ItemSpec struct {
	Type ResourceType `json:"type"`
	VCPU int          `json:"vcpu,omitempty"`
	RAM  int          `json:"ram,omitempty"`
	Size int          `json:"size,omitempty"`
}

// SpecOf flattens item.
func SpecOf(item ResourceItem) ItemSpec {
	switch it := item.(type) {
	case ComputeItem:
		return ItemSpec{Type: ResourceTypeCompute, VCPU: it.VCPU, RAM: it.RAM}
	case VolumeItem:
		return ItemSpec{Type: ResourceTypeVolume, Size: it.Size}
	default:
		return ItemSpec{}
	}
}

// Item rebuilds the ResourceItem described by s.
func (s ItemSpec) Item() (ResourceItem, error) {
	switch s.Type {
	case ResourceTypeCompute:
		return NewComputeItem(s.VCPU, s.RAM)
	case ResourceTypeVolume:
		return NewVolumeItem(s.Size)
	default:
		_, err := ParseResourceType(string(s.Type))
		return nil, err
	}
}
