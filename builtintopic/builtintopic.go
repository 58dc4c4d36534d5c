// Package builtintopic specializes serdata for the discovery topics every
// DDS-style data plane publishes: participant, reader, and writer presence.
// It mirrors dds_sertopic_builtintopic.c's pattern of wrapping an ops
// vtable that additionally stamps participant/reader/writer-specific
// fields, expressed here as a decorator constructing a serdata.Type whose
// Ops dispatch on the builtin-topic's EntityKind, rather than the C
// pattern of hand-rolled vtable-function-pointer switching.
package builtintopic

import (
	"github.com/ddsfabric/ddscore/clock"
	"github.com/ddsfabric/ddscore/serdata"
)

// EntityKind identifies which discovery topic a builtin sample describes,
// matching enum ddsi_sertopic_builtintopic_type (DSBT_PARTICIPANT,
// DSBT_READER, DSBT_WRITER).
type EntityKind int

const (
	KindParticipant EntityKind = iota
	KindReader
	KindWriter
)

// ParticipantSample is the discovery payload for a participant, the Go
// equivalent of dds_builtintopic_participant_t.
type ParticipantSample struct {
	InstanceHandle uint64
	Timestamp      clock.Timestamp
	QoS            map[string]string
}

// EndpointSample is the discovery payload shared by reader and writer
// topics, the Go equivalent of dds_builtintopic_endpoint_t.
type EndpointSample struct {
	InstanceHandle uint64
	ParticipantKey uint64
	TopicName      string
	TypeName       string
	Timestamp      clock.Timestamp
	QoS            map[string]string
}

// New builds a serdata.Type for the given EntityKind, matching
// new_sertopic_builtintopic's dispatch on type to size/zero/free the
// correct payload shape (get_size's switch is here just Go's type system:
// EntityKind selects which concrete sample type Alloc/Zero/Free produce).
func New(kind EntityKind, name, typeName string) *serdata.Type {
	return serdata.New(name, typeName, opsFor(kind))
}

func opsFor(kind EntityKind) serdata.Ops {
	switch kind {
	case KindParticipant:
		return serdata.Ops{
			Alloc: func() any { return &ParticipantSample{} },
			Zero:  func(s any) { *s.(*ParticipantSample) = ParticipantSample{} },
			Realloc: func(samples []any, newCount int) []any {
				return reallocParticipant(samples, newCount)
			},
			Free: freeParticipant,
		}
	default: // KindReader, KindWriter share a payload shape
		return serdata.Ops{
			Alloc: func() any { return &EndpointSample{} },
			Zero:  func(s any) { *s.(*EndpointSample) = EndpointSample{} },
			Realloc: func(samples []any, newCount int) []any {
				return reallocEndpoint(samples, newCount)
			},
			Free: freeEndpoint,
		}
	}
}

func reallocParticipant(samples []any, newCount int) []any {
	out := make([]any, newCount)
	copy(out, samples)
	for i := len(samples); i < newCount; i++ {
		out[i] = &ParticipantSample{}
	}
	return out
}

func reallocEndpoint(samples []any, newCount int) []any {
	out := make([]any, newCount)
	copy(out, samples)
	for i := len(samples); i < newCount; i++ {
		out[i] = &EndpointSample{}
	}
	return out
}

// freeParticipant is the Go equivalent of free_pp: release the sample's QoS map so
// it isn't retained beyond the sample's lifetime.
func freeParticipant(v any) {
	s := v.(*ParticipantSample)
	s.QoS = nil
}

// freeEndpoint is the Go equivalent of free_endpoint.
func freeEndpoint(v any) {
	s := v.(*EndpointSample)
	s.TopicName = ""
	s.TypeName = ""
	s.QoS = nil
}
