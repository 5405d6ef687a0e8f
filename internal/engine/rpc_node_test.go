package engine

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

var _ rpc.Error = codedError{}

func newTestNode(backend *MockEthBackend, stall time.Duration) *RPCNode {
	return NewRPCNode("https://eth.example.com/v2/secretkey1234", backend, nil, NewNodeHealth(0, 1, stall))
}

func TestNormalizeErrorClassification(t *testing.T) {
	n := newTestNode(new(MockEthBackend), time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		wantFault bool
		wantKind  FaultKind
		// HTTP errors carry a Body slice, so they only match by type
		wantHTTP int
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantFault: true, wantKind: FaultStallTimeout},
		{name: "rpc revert code", err: codedError{code: 3, msg: "execution reverted"}},
		{name: "rpc nonce message", err: codedError{code: -32000, msg: "nonce too low"}},
		{name: "rpc internal", err: codedError{code: -32603, msg: "internal error"}, wantFault: true, wantKind: FaultRPCError},
		{name: "http 429", err: rpc.HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}, wantFault: true, wantKind: FaultServerError, wantHTTP: http.StatusTooManyRequests},
		{name: "plain insufficient funds", err: errors.New("insufficient funds for gas * price + value")},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantFault: true, wantKind: FaultServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.normalizeError(ctx, "eth_call", tt.err)
			var pf *ProviderFault
			if !tt.wantFault {
				assert.False(t, errors.As(got, &pf))
				assert.Equal(t, tt.err, got)
				return
			}
			require.ErrorAs(t, got, &pf)
			assert.Equal(t, tt.wantKind, pf.Kind)
			assert.Equal(t, "eth_call", pf.Method)
			if tt.wantHTTP != 0 {
				var httpErr rpc.HTTPError
				require.ErrorAs(t, got, &httpErr)
				assert.Equal(t, tt.wantHTTP, httpErr.StatusCode)
				return
			}
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestNormalizeErrorKeepsCallerCancellation(t *testing.T) {
	n := newTestNode(new(MockEthBackend), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, n.normalizeError(ctx, "eth_call", errors.New("anything")))
}

func TestRPCNodeSyncRecordsHeight(t *testing.T) {
	backend := new(MockEthBackend)
	backend.On("BlockNumber", mock.Anything).Return(uint64(1234), nil)
	n := newTestNode(backend, time.Second)

	require.NoError(t, n.Sync(context.Background()))
	assert.Equal(t, uint64(1234), n.Health().SyncedBlockNumber())
	assert.Equal(t, 1.0, n.Health().Reliability())
	assert.Greater(t, n.Health().CPS(), 0.0)
}

func TestRPCNodeStallTimeoutIsFault(t *testing.T) {
	backend := new(MockEthBackend)
	backend.On("BlockNumber", mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(uint64(0), context.DeadlineExceeded)
	n := newTestNode(backend, 20*time.Millisecond)

	_, err := n.BlockNumber(context.Background())

	var pf *ProviderFault
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, FaultStallTimeout, pf.Kind)
	assert.InDelta(t, 0.8, n.Health().Reliability(), 1e-9)
}

func TestRPCNodeNotFoundIsNil(t *testing.T) {
	backend := new(MockEthBackend)
	backend.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)
	backend.On("TransactionByHash", mock.Anything, mock.Anything).Return(nil, false, ethereum.NotFound)
	backend.On("HeaderByNumber", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)
	n := newTestNode(backend, time.Second)
	ctx := context.Background()

	r, err := n.TransactionReceipt(ctx, common.Hash{1})
	require.NoError(t, err)
	assert.Nil(t, r)

	tx, err := n.TransactionByHash(ctx, common.Hash{1})
	require.NoError(t, err)
	assert.Nil(t, tx)

	h, err := n.HeaderByNumber(ctx, big.NewInt(5))
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestRPCNodeTransactionCountPendingSelectsCall(t *testing.T) {
	acct := common.HexToAddress("0x1")
	backend := new(MockEthBackend)
	backend.On("PendingNonceAt", mock.Anything, acct).Return(uint64(8), nil)
	backend.On("NonceAt", mock.Anything, acct, (*big.Int)(nil)).Return(uint64(7), nil)
	n := newTestNode(backend, time.Second)

	pending, err := n.TransactionCount(context.Background(), acct, true)
	require.NoError(t, err)
	latest, err := n.TransactionCount(context.Background(), acct, false)
	require.NoError(t, err)

	assert.Equal(t, uint64(8), pending)
	assert.Equal(t, uint64(7), latest)
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "https://eth.example.com/...1234", maskURL("https://eth.example.com/v2/secretkey1234"))
	assert.Equal(t, "https://host.io", maskURL("https://user:pw@host.io"))
	assert.Equal(t, "wss://node.io/ws", maskURL("wss://node.io/ws"))
	assert.Equal(t, "http://localhost:8545", maskURL("http://localhost:8545/?apikey=abc"))
	assert.NotContains(t, maskURL("https://rpc.io/?key=deadbeef"), "deadbeef")
}
