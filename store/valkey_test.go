package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	valkeymock "github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

// The zero timeout keeps opContext from deriving a new context, so the mock
// expectations can match on ctx directly.
func newTestValkey(t *testing.T, ctrl *gomock.Controller) (*Valkey, *valkeymock.Client) {
	mockClient := valkeymock.NewClient(ctrl)
	return NewValkey(mockClient, 0, zaptest.NewLogger(t).Sugar()), mockClient
}

func TestValkeyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		t.Run("hit", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("GET", "embedding:hello")).
				Return(valkeymock.Result(valkeymock.ValkeyBlobString("payload")))

			value, found, err := valkeyStore.Get(ctx, "embedding:hello")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("payload"), value)
		})

		t.Run("nil reply is a miss, not an error", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("GET", "missing")).
				Return(valkeymock.Result(valkeymock.ValkeyNil()))

			value, found, err := valkeyStore.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)
			assert.Nil(t, value)
		})

		t.Run("backend error wraps ErrBackendUnavailable", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, gomock.Any()).
				Return(valkeymock.ErrorResult(fmt.Errorf("connection refused")))

			_, found, err := valkeyStore.Get(ctx, "any")
			assert.False(t, found)
			assert.True(t, IsUnavailable(err))
		})
	})

	t.Run("Set", func(t *testing.T) {
		t.Run("uses EX with whole seconds", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("SET", "k", "v", "EX", "60")).
				Return(valkeymock.Result(valkeymock.ValkeyString("OK")))

			err := valkeyStore.Set(ctx, "k", []byte("v"), time.Minute, "generic")
			assert.NoError(t, err)
		})

		t.Run("backend error", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, gomock.Any()).
				Return(valkeymock.ErrorResult(fmt.Errorf("timeout")))

			err := valkeyStore.Set(ctx, "k", []byte("v"), time.Minute, "generic")
			assert.True(t, IsUnavailable(err))
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("present", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("DEL", "k")).
				Return(valkeymock.Result(valkeymock.ValkeyInt64(1)))

			deleted, err := valkeyStore.Delete(ctx, "k")
			require.NoError(t, err)
			assert.True(t, deleted)
		})

		t.Run("absent", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("DEL", "k")).
				Return(valkeymock.Result(valkeymock.ValkeyInt64(0)))

			deleted, err := valkeyStore.Delete(ctx, "k")
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	})

	t.Run("InvalidatePattern", func(t *testing.T) {
		t.Run("scans and deletes in batches until cursor is zero", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			firstScan := mockClient.EXPECT().
				Do(ctx, valkeymock.Match("SCAN", "0", "MATCH", "*user42*", "COUNT", "256")).
				Return(valkeymock.Result(valkeymock.ValkeyArray(
					valkeymock.ValkeyBlobString("17"),
					valkeymock.ValkeyArray(
						valkeymock.ValkeyBlobString("embedding:user42:a"),
						valkeymock.ValkeyBlobString("embedding:user42:b"),
					),
				)))
			firstDel := mockClient.EXPECT().
				Do(ctx, valkeymock.Match("DEL", "embedding:user42:a", "embedding:user42:b")).
				Return(valkeymock.Result(valkeymock.ValkeyInt64(2))).
				After(firstScan)
			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("SCAN", "17", "MATCH", "*user42*", "COUNT", "256")).
				Return(valkeymock.Result(valkeymock.ValkeyArray(
					valkeymock.ValkeyBlobString("0"),
					valkeymock.ValkeyArray(valkeymock.ValkeyBlobString("response:user42")),
				))).
				After(firstDel)
			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("DEL", "response:user42")).
				Return(valkeymock.Result(valkeymock.ValkeyInt64(1)))

			removed, err := valkeyStore.InvalidatePattern(ctx, "user42")
			require.NoError(t, err)
			assert.Equal(t, 3, removed)
		})

		t.Run("empty scan deletes nothing", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("SCAN", "0", "MATCH", "*nothing*", "COUNT", "256")).
				Return(valkeymock.Result(valkeymock.ValkeyArray(
					valkeymock.ValkeyBlobString("0"),
					valkeymock.ValkeyArray(),
				)))

			removed, err := valkeyStore.InvalidatePattern(ctx, "nothing")
			require.NoError(t, err)
			assert.Equal(t, 0, removed)
		})

		t.Run("scan failure reports unavailable", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			valkeyStore, mockClient := newTestValkey(t, ctrl)

			mockClient.EXPECT().
				Do(ctx, gomock.Any()).
				Return(valkeymock.ErrorResult(fmt.Errorf("connection reset")))

			removed, err := valkeyStore.InvalidatePattern(ctx, "x")
			assert.Equal(t, 0, removed)
			assert.True(t, IsUnavailable(err))
		})
	})
}
