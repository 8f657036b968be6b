package marketplace

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(req interface{}) (interface{}, error)

// fakeTransport answers operations from per-op handlers and counts calls
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
	requests map[string][]interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]handlerFunc),
		calls:    make(map[string]int),
		requests: make(map[string][]interface{}),
	}
}

func (f *fakeTransport) on(op string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[op] = h
}

func (f *fakeTransport) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeTransport) Call(_ context.Context, op string, request interface{}, response interface{}) error {
	f.mu.Lock()
	f.calls[op]++
	f.requests[op] = append(f.requests[op], request)
	h, ok := f.handlers[op]
	f.mu.Unlock()

	if !ok {
		return &Fault{Code: "ERR_UNEXPECTED_OP", Message: op}
	}

	result, err := h(request)
	if err != nil {
		return err
	}
	if response == nil || result == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, response)
}

func (f *fakeTransport) acceptLogin(handle string) {
	f.on(opQuerySysStatus, func(interface{}) (interface{}, error) {
		return map[string]interface{}{"verKey": 42}, nil
	})
	f.on(opLoginEnc, func(req interface{}) (interface{}, error) {
		return map[string]interface{}{"sessionHandlePart": handle, "userId": 7}, nil
	})
}

var testCreds = Credentials{Login: "seller", PasswordHash: HashPassword("secret"), WebapiKey: "key"}

func TestLoginCachesSession(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("session-1")
	client := NewClient(transport, nil, Options{})
	ctx := context.Background()

	require.True(t, client.IsLoginRequired(ctx, 1))
	require.NoError(t, client.Login(ctx, 1, testCreds))
	require.NoError(t, client.Login(ctx, 1, testCreds))

	require.False(t, client.IsLoginRequired(ctx, 1))
	require.Equal(t, 1, transport.count(opLoginEnc))

	login := transport.requests[opLoginEnc][0].(loginRequest)
	require.Equal(t, int64(42), login.LocalVersion)
	require.Equal(t, testCreds.PasswordHash, login.UserHashPassword)
}

func TestLoginExpiresAfterSessionTTL(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("session-1")
	client := NewClient(transport, nil, Options{SessionTTL: 55 * time.Minute})
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, 1, testCreds))

	now = now.Add(54 * time.Minute)
	require.False(t, client.IsLoginRequired(ctx, 1))

	now = now.Add(2 * time.Minute)
	require.True(t, client.IsLoginRequired(ctx, 1))

	require.NoError(t, client.Login(ctx, 1, testCreds))
	require.Equal(t, 2, transport.count(opLoginEnc))
}

func TestConcurrentLoginsShareOneHandshake(t *testing.T) {
	transport := newFakeTransport()
	release := make(chan struct{})
	var started int32
	transport.on(opQuerySysStatus, func(interface{}) (interface{}, error) {
		atomic.AddInt32(&started, 1)
		<-release
		return map[string]interface{}{"verKey": 1}, nil
	})
	transport.on(opLoginEnc, func(interface{}) (interface{}, error) {
		return map[string]interface{}{"sessionHandlePart": "shared"}, nil
	})
	client := NewClient(transport, nil, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Login(context.Background(), 1, testCreds)
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight handshake
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, transport.count(opLoginEnc))
	require.False(t, client.IsLoginRequired(context.Background(), 1))
}

func TestCallWithoutSessionFailsFast(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient(transport, nil, Options{})

	_, err := client.SendRefund(context.Background(), 1, 10, 1, 1)
	require.ErrorIs(t, err, ErrNotLoggedIn)
	require.Equal(t, 0, transport.count(opSendRefundForm))
}

func TestSessionFaultReauthenticatesAndRetriesOnce(t *testing.T) {
	transport := newFakeTransport()
	handles := []string{"stale", "fresh"}
	var logins int
	transport.on(opQuerySysStatus, func(interface{}) (interface{}, error) {
		return map[string]interface{}{"verKey": 1}, nil
	})
	transport.on(opLoginEnc, func(interface{}) (interface{}, error) {
		handle := handles[logins]
		logins++
		return map[string]interface{}{"sessionHandlePart": handle}, nil
	})
	transport.on(opSendRefundForm, func(req interface{}) (interface{}, error) {
		if req.(refundRequest).SessionID == "stale" {
			return nil, &Fault{Code: FaultSessionExpired}
		}
		return map[string]interface{}{"refundId": 555}, nil
	})
	client := NewClient(transport, nil, Options{})
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, 1, testCreds))

	refundID, err := client.SendRefund(ctx, 1, 10, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(555), refundID)
	require.Equal(t, 2, transport.count(opSendRefundForm))
	require.Equal(t, 2, transport.count(opLoginEnc))
}

func TestSessionFaultOnRetryIsReturned(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("always-stale")
	transport.on(opSendRefundForm, func(interface{}) (interface{}, error) {
		return nil, &Fault{Code: FaultNoSession}
	})
	client := NewClient(transport, nil, Options{})
	ctx := context.Background()
	require.NoError(t, client.Login(ctx, 1, testCreds))

	_, err := client.SendRefund(ctx, 1, 10, 1, 1)
	require.True(t, HasFault(err, FaultNoSession))
	require.Equal(t, 2, transport.count(opSendRefundForm))
}

func TestCancelRefundMapsDomainFaultsToFalse(t *testing.T) {
	for _, code := range []FaultCode{FaultIncorrectRefundID, FaultCancelled} {
		t.Run(string(code), func(t *testing.T) {
			transport := newFakeTransport()
			transport.acceptLogin("s")
			transport.on(opCancelRefundForm, func(interface{}) (interface{}, error) {
				return nil, &Fault{Code: code}
			})
			client := NewClient(transport, nil, Options{})
			require.NoError(t, client.Login(context.Background(), 1, testCreds))

			ok, err := client.CancelRefund(context.Background(), 1, 99)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestCancelRefundPropagatesOtherFailures(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opCancelRefundForm, func(interface{}) (interface{}, error) {
		return nil, &CommunicationError{Op: opCancelRefundForm, Err: context.Canceled}
	})
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	ok, err := client.CancelRefund(context.Background(), 1, 99)
	require.Error(t, err)
	require.False(t, ok)
	require.True(t, IsTransient(err))
}

func TestUpdateAuctionFeesInvalidItemYieldsZero(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetMyBillingItem, func(interface{}) (interface{}, error) {
		return nil, &Fault{Code: FaultInvalidItemID}
	})
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	fees, err := client.UpdateAuctionFees(context.Background(), 1, 123)
	require.NoError(t, err)
	require.Equal(t, AuctionFees{}, fees)
}

func TestUpdateAuctionFeesSumsBilling(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetMyBillingItem, func(interface{}) (interface{}, error) {
		return map[string]interface{}{"itemBilling": []map[string]interface{}{
			{"biName": "Opening fee", "biValue": 0.5},
			{"biName": "Sale commission", "biValue": 2.25},
		}}, nil
	})
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	fees, err := client.UpdateAuctionFees(context.Background(), 1, 123)
	require.NoError(t, err)
	require.InDelta(t, 0.5, fees.OpenCost, 1e-9)
	require.InDelta(t, 2.25, fees.Fee, 1e-9)
}

func TestGetWaitingFeedbackPages(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetWaitingFeedbacks, func(req interface{}) (interface{}, error) {
		offset := req.(waitingFeedbackRequest).Offset
		size := 2
		if offset > 0 {
			size = 1
		}
		list := make([]map[string]interface{}, 0, size)
		for i := 0; i < size; i++ {
			list = append(list, map[string]interface{}{
				"feItemId": 100, "feToUserId": offset + i, "feOp": 2,
				"feAnsCommentType": "pos", "fePossibilityToAdd": 1,
			})
		}
		return map[string]interface{}{"feWaitList": list}, nil
	})
	client := NewClient(transport, nil, Options{FeedbackPageSize: 2})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	waiting, err := client.GetWaitingFeedback(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, waiting, 3)
	require.True(t, waiting[0].AwaitsReplyToPositive())
	require.Equal(t, 2, transport.count(opGetWaitingFeedbacks))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(ErrTimeout))
	require.True(t, IsTransient(&CommunicationError{Op: "x", Err: context.Canceled}))
	require.True(t, IsTransient(&AggregateError{Errors: []error{&Fault{Code: FaultNoSession}}}))
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.True(t, IsTransient(errors.Wrap(&Fault{Code: FaultInvalidItemID}, "fetching buyer 7")))
	require.True(t, IsTransient(errors.Wrap(&Fault{Code: FaultSessionExpired}, "doGetSiteJournalDeals")))
	require.True(t, IsTransient(errors.Wrapf(ErrNotLoggedIn, "doFeedback for user %d", 1)))
	require.True(t, IsTransient(errors.Wrapf(ErrBuyerNotFound, "buyer %d on auction %d", 7, 8)))
	require.False(t, IsTransient(errors.New("constraint violation")))
	require.False(t, IsTransient(stderrors.Join(ErrTimeout, errors.New("constraint violation"))))
	require.False(t, IsTransient(nil))
}

func TestFaultMatchesByCode(t *testing.T) {
	var err error = &Fault{Code: FaultCancelled, Message: "already cancelled"}
	require.ErrorIs(t, err, &Fault{Code: FaultCancelled})
	require.NotErrorIs(t, err, &Fault{Code: FaultNoSession})
}

func TestHashPassword(t *testing.T) {
	// sha256("secret"), base64
	require.Equal(t, "K7gNU3sdo+OL0wNhqoVWhr3g6s1xYv72ol/pe/Unols=", HashPassword("secret"))
}

func TestFetchBuyerDataMissingBuyerIsTransient(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetPostBuyData, func(interface{}) (interface{}, error) {
		return map[string]interface{}{"itemsPostBuyData": []interface{}{}}, nil
	})
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	_, err := client.FetchBuyerData(context.Background(), 1, 100, 7)
	require.ErrorIs(t, err, ErrBuyerNotFound)
	require.True(t, IsTransient(err))
}

func TestRepeatedSessionFaultIsTransient(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetPostBuyData, func(interface{}) (interface{}, error) {
		return nil, &Fault{Code: FaultSessionExpired}
	})
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	_, err := client.FetchBuyerData(context.Background(), 1, 100, 7)
	require.Error(t, err)
	require.Equal(t, 2, transport.count(opGetPostBuyData))
	require.True(t, IsTransient(err))
}
