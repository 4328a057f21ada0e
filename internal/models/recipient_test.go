package models

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genMessageStatus() gopter.Gen {
	return gen.IntRange(0, StatusCount-1).Map(func(i int) MessageStatus {
		return MessageStatus(i)
	})
}

func genRecipient() gopter.Gen {
	return gopter.CombineGens(gen.Bool(), genMessageStatus()).Map(func(values []interface{}) MessageRecipient {
		status := values[1].(MessageStatus)
		if values[0].(bool) {
			return HostRecipient(status)
		}
		return ClientRecipient(status)
	})
}

func TestCompare_HostDominatesClient(t *testing.T) {
	assert.Equal(t, 1, Compare(HostRecipient(MessageStatusPending), ClientRecipient(MessageStatusUnsubscribed)))
	assert.Equal(t, 1, Compare(HostRecipient(MessageStatusPending), ClientRecipient(MessageStatusUnavailable)))
	assert.Equal(t, -1, Compare(ClientRecipient(MessageStatusUnavailable), HostRecipient(MessageStatusPending)))
}

func TestCompare_WithinChannel(t *testing.T) {
	assert.Equal(t, 1, Compare(HostRecipient(MessageStatusRead), HostRecipient(MessageStatusSent)))
	assert.Equal(t, -1, Compare(ClientRecipient(MessageStatusDelivered), ClientRecipient(MessageStatusFailed)))
	assert.Equal(t, 0, Compare(ClientRecipient(MessageStatusSent), ClientRecipient(MessageStatusSent)))
	assert.True(t, ClientRecipient(MessageStatusUnknown).Less(ClientRecipient(MessageStatusUnsubscribed)))
}

func TestMaxRecipient(t *testing.T) {
	_, ok := MaxRecipient()
	assert.False(t, ok)

	max, ok := MaxRecipient(
		ClientRecipient(MessageStatusUnsubscribed),
		HostRecipient(MessageStatusSent),
		ClientRecipient(MessageStatusRead),
		HostRecipient(MessageStatusPending),
	)
	require.True(t, ok)
	assert.Equal(t, HostRecipient(MessageStatusSent), max)

	max, ok = MaxRecipient(ClientRecipient(MessageStatusDelivered), ClientRecipient(MessageStatusFailed))
	require.True(t, ok)
	assert.Equal(t, ClientRecipient(MessageStatusFailed), max)
}

func TestRecipient_SortIsTotal(t *testing.T) {
	var all []MessageRecipient
	for _, status := range AllMessageStatuses() {
		all = append(all, HostRecipient(status), ClientRecipient(status))
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Less(all[j]) })

	require.Len(t, all, 2*StatusCount)
	for i := 0; i < StatusCount; i++ {
		assert.Equal(t, ChannelClient, all[i].Channel)
		assert.Equal(t, i, all[i].Status.Rank())
		assert.Equal(t, ChannelHost, all[StatusCount+i].Channel)
		assert.Equal(t, i, all[StatusCount+i].Status.Rank())
	}
}

func TestRecipient_JSON(t *testing.T) {
	data, err := json.Marshal(HostRecipient(MessageStatusSent))
	require.NoError(t, err)
	assert.JSONEq(t, `{"host":"sent"}`, string(data))

	data, err = json.Marshal(ClientRecipient(MessageStatusUnknown))
	require.NoError(t, err)
	assert.JSONEq(t, `{"client":"not sent"}`, string(data))

	var r MessageRecipient
	require.NoError(t, json.Unmarshal([]byte(`{"Host":"READ"}`), &r))
	assert.Equal(t, HostRecipient(MessageStatusRead), r)

	assert.Error(t, json.Unmarshal([]byte(`{}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"host":"read","client":"sent"}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"guest":"read"}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`"host"`), &r))

	_, err = json.Marshal(MessageRecipient{Channel: RecipientChannel(7)})
	assert.Error(t, err)
}

func TestRecipientChannel_SQL(t *testing.T) {
	value, err := ChannelHost.Value()
	require.NoError(t, err)
	assert.Equal(t, "host", value)

	var c RecipientChannel
	require.NoError(t, c.Scan([]byte("client")))
	assert.Equal(t, ChannelClient, c)
	assert.Error(t, c.Scan("guest"))
	assert.Error(t, c.Scan(nil))
}

// Property: Compare is a total order consistent with the combined index
func TestProperty_RecipientOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("host report beats every client report", prop.ForAll(
		func(s1, s2 MessageStatus) bool {
			return Compare(HostRecipient(s1), ClientRecipient(s2)) > 0
		},
		genMessageStatus(),
		genMessageStatus(),
	))

	properties.Property("rank order is preserved within a channel", prop.ForAll(
		func(s1, s2 MessageStatus) bool {
			if s1.Rank() <= s2.Rank() {
				return true
			}
			return Compare(HostRecipient(s1), HostRecipient(s2)) > 0 &&
				Compare(ClientRecipient(s1), ClientRecipient(s2)) > 0
		},
		genMessageStatus(),
		genMessageStatus(),
	))

	properties.Property("compare is antisymmetric", prop.ForAll(
		func(a, b MessageRecipient) bool {
			return Compare(a, b) == -Compare(b, a)
		},
		genRecipient(),
		genRecipient(),
	))

	properties.Property("compare is reflexive and equal only for equal values", prop.ForAll(
		func(a, b MessageRecipient) bool {
			if Compare(a, a) != 0 {
				return false
			}
			return (Compare(a, b) == 0) == (a == b)
		},
		genRecipient(),
		genRecipient(),
	))

	properties.Property("compare is transitive", prop.ForAll(
		func(a, b, c MessageRecipient) bool {
			if Compare(a, b) <= 0 && Compare(b, c) <= 0 {
				return Compare(a, c) <= 0
			}
			return true
		},
		genRecipient(),
		genRecipient(),
		genRecipient(),
	))

	properties.Property("max is an upper bound", prop.ForAll(
		func(a, b, c MessageRecipient) bool {
			max, ok := MaxRecipient(a, b, c)
			return ok && Compare(max, a) >= 0 && Compare(max, b) >= 0 && Compare(max, c) >= 0
		},
		genRecipient(),
		genRecipient(),
		genRecipient(),
	))

	properties.Property("json round trip", prop.ForAll(
		func(r MessageRecipient) bool {
			data, err := json.Marshal(r)
			if err != nil {
				return false
			}
			var decoded MessageRecipient
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			return decoded == r
		},
		genRecipient(),
	))

	properties.TestingRun(t)
}
