package builtintopic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddsfabric/ddscore/serdata"
)

func TestParticipantSampleLifecycle(t *testing.T) {
	typ := New(KindParticipant, "DCPSParticipant", "ParticipantBuiltinTopicData")
	s := serdata.NewSamples(typ, 2)
	require.Equal(t, 2, s.Len())
	p := s.At(0).(*ParticipantSample)
	p.QoS = map[string]string{"foo": "bar"}

	s.Free()
	assert.Equal(t, 0, s.Len())
}

func TestEndpointSampleRealloc(t *testing.T) {
	typ := New(KindWriter, "DCPSPublication", "PublicationBuiltinTopicData")
	s := serdata.NewSamples(typ, 1)
	s.Realloc(4)
	require.Equal(t, 4, s.Len())
	for i := 0; i < 4; i++ {
		assert.IsType(t, &EndpointSample{}, s.At(i))
	}
}

func TestReaderAndWriterShareEndpointShape(t *testing.T) {
	r := New(KindReader, "DCPSSubscription", "SubscriptionBuiltinTopicData")
	w := New(KindWriter, "DCPSPublication", "PublicationBuiltinTopicData")
	rs := serdata.NewSamples(r, 1)
	ws := serdata.NewSamples(w, 1)
	assert.IsType(t, &EndpointSample{}, rs.At(0))
	assert.IsType(t, &EndpointSample{}, ws.At(0))
}
