package attribute

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/common"
)

// maxMembers is the hard cap on attributes per schema. Dirty state is tracked
// as a uint64 bitset keyed by member index.
const maxMembers = 64

// Spec declares a single named attribute when registering a pipeline schema.
type Spec struct {
	// Name is the attribute identifier, unique within the schema.
	Name string

	// Type is the semantic GPU type of the attribute.
	Type Type
}

// Member is the resolved layout of one attribute within a packed block:
// the declared name and type plus the byte offset computed at schema build time.
type Member struct {
	// Name is the attribute identifier.
	Name string

	// Type is the semantic GPU type.
	Type Type

	// Index is the member's position in declaration order. It doubles as the
	// member's bit position in dirty bitsets.
	Index int

	// Offset is the byte offset of the member within one packed instance.
	Offset int
}

// Schema is the explicit per-pipeline attribute layout: an ordered set of
// members with computed offsets and an aligned stride. It is built once at
// pipeline registration and shared read-only between the diff tracker and the
// command generator, replacing any codegen or reflection facility.
type Schema struct {
	members []Member
	byName  map[string]int
	stride  int
}

// NewSchema builds a Schema from the given specs. Offsets are assigned in
// declaration order with per-type alignment (float/uint 4, vec2 8, vec4 16)
// and the stride is rounded up to the largest member alignment.
//
// Parameters:
//   - specs: the ordered attribute declarations
//
// Returns:
//   - *Schema: the built schema
//   - error: if specs is empty, exceeds 64 members, or contains a duplicate name
func NewSchema(specs ...Spec) (*Schema, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("schema requires at least one attribute")
	}
	if len(specs) > maxMembers {
		return nil, fmt.Errorf("schema supports at most %d attributes, got %d", maxMembers, len(specs))
	}

	s := &Schema{
		members: make([]Member, 0, len(specs)),
		byName:  make(map[string]int, len(specs)),
	}

	offset := 0
	maxAlign := 4
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("schema attribute %d has an empty name", i)
		}
		if _, exists := s.byName[spec.Name]; exists {
			return nil, fmt.Errorf("schema attribute %q declared twice", spec.Name)
		}

		align := spec.Type.Alignment()
		if align > maxAlign {
			maxAlign = align
		}
		offset = common.AlignUp(offset, align)

		s.byName[spec.Name] = i
		s.members = append(s.members, Member{
			Name:   spec.Name,
			Type:   spec.Type,
			Index:  i,
			Offset: offset,
		})
		offset += spec.Type.Size()
	}

	s.stride = common.AlignUp(offset, maxAlign)
	return s, nil
}

// Stride returns the aligned byte size of one packed instance.
//
// Returns:
//   - int: bytes per instance
func (s *Schema) Stride() int {
	return s.stride
}

// Len returns the number of members.
func (s *Schema) Len() int {
	return len(s.members)
}

// Members returns the resolved members in declaration order. The returned
// slice is shared; callers must not modify it.
func (s *Schema) Members() []Member {
	return s.members
}

// Member looks up a member by name.
//
// Parameters:
//   - name: the attribute name
//
// Returns:
//   - Member: the resolved member
//   - bool: false if the schema does not declare the name
func (s *Schema) Member(name string) (Member, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Member{}, false
	}
	return s.members[i], true
}

// Compatible reports whether two schemas produce the identical packed layout:
// same member names, types, and offsets in the same order. Objects may only be
// reassigned between pipelines whose schemas are compatible.
//
// Parameters:
//   - other: the schema to compare against
//
// Returns:
//   - bool: true if the packed layouts are identical
func (s *Schema) Compatible(other *Schema) bool {
	if other == nil || len(s.members) != len(other.members) || s.stride != other.stride {
		return false
	}
	for i, m := range s.members {
		o := other.members[i]
		if m.Name != o.Name || m.Type != o.Type || m.Offset != o.Offset {
			return false
		}
	}
	return true
}

// Pack writes all values into a freshly allocated full-stride block.
// values must be in declaration order and len(values) must equal Len;
// this is validated at mutation time, not here.
//
// Parameters:
//   - values: the current attribute values in declaration order
//
// Returns:
//   - []byte: a stride-sized packed block
func (s *Schema) Pack(values []Value) []byte {
	dst := make([]byte, s.stride)
	for i, m := range s.members {
		values[i].put(dst, m.Offset)
	}
	return dst
}

// PackSpan packs the smallest contiguous byte span covering every member whose
// bit is set in dirty, rebuilt from current values. Members that happen to sit
// inside the span but are clean are packed too; their bytes are identical to
// what the GPU already holds, so the single contiguous write stays correct.
//
// Parameters:
//   - values: the current attribute values in declaration order
//   - dirty: bitset of changed member indices
//
// Returns:
//   - []byte: the packed span, nil if dirty is zero
//   - int: the byte offset of the span within one instance
func (s *Schema) PackSpan(values []Value, dirty uint64) ([]byte, int) {
	if dirty == 0 {
		return nil, 0
	}

	lo, hi := s.stride, 0
	for _, m := range s.members {
		if dirty&(1<<uint(m.Index)) == 0 {
			continue
		}
		if m.Offset < lo {
			lo = m.Offset
		}
		if end := m.Offset + m.Type.Size(); end > hi {
			hi = end
		}
	}

	dst := make([]byte, hi-lo)
	for i, m := range s.members {
		if m.Offset >= lo && m.Offset+m.Type.Size() <= hi {
			values[i].put(dst, m.Offset-lo)
		}
	}
	return dst, lo
}

// DirtyNames returns the names of the members whose bits are set in dirty,
// in declaration order.
//
// Parameters:
//   - dirty: bitset of changed member indices
//
// Returns:
//   - []string: the changed attribute names, nil if dirty is zero
func (s *Schema) DirtyNames(dirty uint64) []string {
	if dirty == 0 {
		return nil
	}
	names := make([]string, 0, len(s.members))
	for _, m := range s.members {
		if dirty&(1<<uint(m.Index)) != 0 {
			names = append(names, m.Name)
		}
	}
	return names
}

// AllDirty returns the bitset with every member bit set.
func (s *Schema) AllDirty() uint64 {
	if len(s.members) == maxMembers {
		return ^uint64(0)
	}
	return (uint64(1) << uint(len(s.members))) - 1
}

// ZeroValues returns a declaration-ordered slice of zero values, one per member.
func (s *Schema) ZeroValues() []Value {
	values := make([]Value, len(s.members))
	for i, m := range s.members {
		values[i] = Zero(m.Type)
	}
	return values
}
