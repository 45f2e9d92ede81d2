package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofalre.io/storefront/models"
	"gofalre.io/storefront/models/enum"
)

const cartPage = `<!DOCTYPE html>
<html><body>
<nav><a href="/cart"><i class="bi bi-cart3"></i><span class="badge">3</span></a></nav>
<table><tbody>
  <tr data-id="42">
    <td>Smart Watch</td>
    <td>
      <button class="decrease" data-id="42">-</button>
      <input class="quantity" data-id="42" value="2">
      <button class="increase" data-id="42">+</button>
    </td>
    <td class="item-total">$20</td>
    <td><button class="remove-item" data-id="42">Remove</button></td>
  </tr>
  <tr data-id="7">
    <td>Slippers</td>
    <td><input class="quantity" data-id="7" value="1"></td>
    <td class="item-total">$0</td>
    <td><button class="remove-item" data-id="7">Remove</button></td>
  </tr>
</tbody></table>
<div class="card" data-id="42">
  <input class="quantity" data-id="42" value="2">
  <p>Total: <span class="item-total">$20</span></p>
</div>
<div class="card" data-id="7">
  <p>Total: <span class="item-total">$0</span></p>
</div>
<p>Subtotal: <span id="cart-subtotal">$20.00</span></p>
<p>Shipping: <span id="cart-shipping">$5.00</span></p>
<p>Total: <span id="cart-total">$25.00</span></p>
<div id="toastContainer"></div>
</body></html>`

type recordedRequest struct {
	Path string
	Body string
}

// cartServer answers every request with the next scripted response.
type cartServer struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []recordedRequest
	responses []func(w http.ResponseWriter)
}

func newCartServer(t *testing.T) *cartServer {
	t.Helper()
	s := &cartServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{Path: r.URL.Path, Body: string(body)})
		var respond func(w http.ResponseWriter)
		if len(s.responses) > 0 {
			respond = s.responses[0]
			s.responses = s.responses[1:]
		}
		s.mu.Unlock()

		if respond == nil {
			http.Error(w, "no scripted response", http.StatusTeapot)
			return
		}
		respond(w)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *cartServer) replyJSON(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	})
}

func (s *cartServer) replyRaw(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (s *cartServer) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.requests...)
}

func newTestController(t *testing.T) (*Controller, *Document, *cartServer) {
	t.Helper()
	doc, err := ParseDocument(strings.NewReader(cartPage))
	require.NoError(t, err)
	t.Cleanup(doc.Close)

	srv := newCartServer(t)
	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	c := New(doc, client)
	t.Cleanup(c.Close)
	return c, doc, srv
}

func updateResponse(cartQuantity int, itemTotal, subtotal float64) map[string]any {
	return map[string]any{"success": true, "cart_quantity": cartQuantity, "item_total": itemTotal, "subtotal": subtotal}
}

func TestController_ReadsShippingOnce(t *testing.T) {
	c, doc, srv := newTestController(t)
	assert.Equal(t, 5.0, c.Shipping())

	doc.setTextByID("cart-shipping", "$99")
	srv.replyJSON(updateResponse(3, 30, 30))
	require.NoError(t, c.UpdateCart(context.Background(), "42", 3))

	assert.Equal(t, "$35", doc.Text("cart-total"))
}

func TestController_IncreaseScenario(t *testing.T) {
	c, doc, srv := newTestController(t)
	srv.replyJSON(updateResponse(5, 30, 30))

	c.Increase(context.Background(), "42")
	c.Wait()

	reqs := srv.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/update-cart/42", reqs[0].Path)
	assert.JSONEq(t, `{"quantity":3}`, reqs[0].Body)

	assert.Equal(t, "5", doc.Badge())
	assert.Equal(t, []string{"$30", "$30"}, doc.ItemTotals("42"))
	assert.Equal(t, "$30", doc.Text("cart-subtotal"))
	assert.Equal(t, "$35", doc.Text("cart-total"))

	quantity, ok := doc.Quantity("42")
	require.True(t, ok)
	assert.Equal(t, "3", quantity)
}

func TestController_IncreaseSendsEachIncrement(t *testing.T) {
	c, doc, srv := newTestController(t)

	const clicks = 4
	for i := 0; i < clicks; i++ {
		srv.replyJSON(updateResponse(3+i, 0, 0))
		c.Increase(context.Background(), "42")
		c.Wait()
	}

	reqs := srv.recorded()
	require.Len(t, reqs, clicks)
	for i, req := range reqs {
		var body struct{ Quantity int }
		require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
		assert.Equal(t, 3+i, body.Quantity)
	}

	quantity, _ := doc.Quantity("42")
	assert.Equal(t, "6", quantity)
}

func TestController_DecreaseStopsAtOne(t *testing.T) {
	c, doc, srv := newTestController(t)

	srv.replyJSON(updateResponse(2, 10, 10))
	c.Decrease(context.Background(), "42")
	c.Wait()

	reqs := srv.recorded()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"quantity":1}`, reqs[0].Body)

	for i := 0; i < 3; i++ {
		c.Decrease(context.Background(), "42")
	}
	c.Wait()

	assert.Len(t, srv.recorded(), 1)
	quantity, _ := doc.Quantity("42")
	assert.Equal(t, "1", quantity)
}

func TestController_ChangeQuantityClampsToOne(t *testing.T) {
	for _, typed := range []string{"0", "-4", "abc", ""} {
		t.Run(typed, func(t *testing.T) {
			c, doc, srv := newTestController(t)
			srv.replyJSON(updateResponse(1, 10, 10))

			require.True(t, doc.TypeQuantity("42", typed))
			c.ChangeQuantity(context.Background(), "42")
			c.Wait()

			reqs := srv.recorded()
			require.Len(t, reqs, 1)
			assert.JSONEq(t, `{"quantity":1}`, reqs[0].Body)

			quantity, _ := doc.Quantity("42")
			assert.Equal(t, "1", quantity)
		})
	}
}

func TestController_ChangeQuantitySendsTypedValue(t *testing.T) {
	c, doc, srv := newTestController(t)
	srv.replyJSON(updateResponse(9, 80, 80))

	doc.TypeQuantity("42", "8")
	c.ChangeQuantity(context.Background(), "42")
	c.Wait()

	reqs := srv.recorded()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"quantity":8}`, reqs[0].Body)
	assert.Equal(t, "9", doc.Badge())
}

func TestController_RemoveScenario(t *testing.T) {
	c, doc, srv := newTestController(t)
	srv.replyJSON(map[string]any{"success": true, "cart_quantity": 0, "subtotal": 0})

	c.Remove(context.Background(), "7")
	c.Wait()

	reqs := srv.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/remove-from-cart/7", reqs[0].Path)
	assert.Empty(t, reqs[0].Body)

	assert.False(t, doc.HasLine("7"))
	assert.True(t, doc.HasLine("42"))
	assert.Equal(t, "0", doc.Badge())
	assert.Equal(t, "$0", doc.Text("cart-subtotal"))
	assert.Equal(t, "$5", doc.Text("cart-total"))
	assert.Equal(t, []string{RemovedMessage}, doc.Toasts())
	assert.Contains(t, doc.String(), "bg-warning text-dark")
}

func TestController_FailuresLeaveViewUntouched(t *testing.T) {
	cases := map[string]func(s *cartServer){
		"rejected": func(s *cartServer) {
			s.replyJSON(map[string]any{"success": false, "cart_quantity": 99, "subtotal": 99})
		},
		"not json": func(s *cartServer) {
			s.replyRaw(http.StatusOK, "<html>oops</html>")
		},
		"server error": func(s *cartServer) {
			s.replyRaw(http.StatusInternalServerError, "boom")
		},
	}

	for name, script := range cases {
		t.Run(name, func(t *testing.T) {
			c, doc, srv := newTestController(t)
			before := doc.String()
			script(srv)
			script(srv)

			c.Increase(context.Background(), "42")
			c.Remove(context.Background(), "7")
			c.Wait()

			assert.Len(t, srv.recorded(), 2)
			after := doc.String()
			// Only the quantity field moved.
			assert.Equal(t, strings.Replace(before, `value="2"`, `value="3"`, 2), after)
			assert.Empty(t, doc.Toasts())
		})
	}
}

func TestController_TransportFailureIsSilent(t *testing.T) {
	c, doc, srv := newTestController(t)
	srv.Close()

	c.Remove(context.Background(), "7")
	c.Wait()

	assert.True(t, doc.HasLine("7"))
	assert.Equal(t, "3", doc.Badge())
	assert.Empty(t, doc.Toasts())
}

func TestController_SynchronousErrors(t *testing.T) {
	c, _, srv := newTestController(t)
	ctx := context.Background()

	srv.replyJSON(map[string]any{"success": false, "error": "nope"})
	err := c.UpdateCart(ctx, "42", 3)
	assert.ErrorIs(t, err, ErrRejected)

	srv.replyRaw(http.StatusOK, "{")
	err = c.RemoveFromCart(ctx, "7")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestController_ToastCapacity(t *testing.T) {
	c, doc, _ := newTestController(t)

	for i := 0; i < 5; i++ {
		c.ShowToast(string(rune('a'+i)), enum.ToastCategorySuccess)
		assert.LessOrEqual(t, len(doc.Toasts()), 2)
	}
	assert.Equal(t, []string{"d", "e"}, doc.Toasts())
}

func TestController_ToastWithoutContainer(t *testing.T) {
	page := strings.Replace(cartPage, `<div id="toastContainer"></div>`, "", 1)
	doc, err := ParseDocument(strings.NewReader(page))
	require.NoError(t, err)

	c := New(doc, &stubAPI{})
	defer c.Close()

	assert.NotPanics(t, func() { c.ShowToast("hello", "") })
	assert.Nil(t, doc.Toasts())
}

func TestController_ToastMessageIsText(t *testing.T) {
	c, doc, _ := newTestController(t)

	c.ShowToast("<b>bold</b>", "")

	assert.Equal(t, []string{"<b>bold</b>"}, doc.Toasts())
	assert.Contains(t, doc.String(), "&lt;b&gt;bold&lt;/b&gt;")
	assert.Contains(t, doc.String(), "bg-info text-dark")
}

func TestDocument_ToastAutoHides(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(cartPage))
	require.NoError(t, err)
	defer doc.Close()

	container, ok := doc.ToastContainer()
	require.True(t, ok)
	container.Append(&models.Toast{Message: "bye", Category: enum.ToastCategoryInfo, Delay: 20 * time.Millisecond, Autohide: true})
	assert.Equal(t, []string{"bye"}, doc.Toasts())

	assert.Eventually(t, func() bool { return len(doc.Toasts()) == 0 }, time.Second, 5*time.Millisecond)
}

// stubAPI lets the controller run against a View without a server.
type stubAPI struct {
	update *models.LineUpdate
	err    error
}

func (s *stubAPI) UpdateCart(context.Context, string, int) (*models.LineUpdate, error) {
	return s.update, s.err
}

func (s *stubAPI) RemoveFromCart(context.Context, string) (*models.CartSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.update.CartSummary, nil
}

// recordingView counts every mutation made by the controller.
type recordingView struct {
	quantity  string
	mutations []string
}

func (v *recordingView) Quantity(string) (string, bool) { return v.quantity, true }
func (v *recordingView) SetQuantity(_ string, q int) {
	v.mutations = append(v.mutations, "quantity")
}
func (v *recordingView) SetBadge(int) { v.mutations = append(v.mutations, "badge") }
func (v *recordingView) LineElements(string) []LineElement {
	return []LineElement{v}
}
func (v *recordingView) SetItemTotal(float64)                   { v.mutations = append(v.mutations, "item-total") }
func (v *recordingView) SetSubtotal(float64)                    { v.mutations = append(v.mutations, "subtotal") }
func (v *recordingView) SetTotal(float64)                       { v.mutations = append(v.mutations, "total") }
func (v *recordingView) RemoveLine(string)                      { v.mutations = append(v.mutations, "remove") }
func (v *recordingView) Shipping() (float64, error)             { return 0, errors.New("no shipping") }
func (v *recordingView) ToastContainer() (ToastContainer, bool) { return nil, false }

func TestController_NoOptimisticUpdate(t *testing.T) {
	view := &recordingView{quantity: "2"}
	api := &stubAPI{err: errors.New("offline")}
	c := New(view, api)
	defer c.Close()

	assert.Zero(t, c.Shipping())
	assert.Error(t, c.UpdateCart(context.Background(), "42", 3))
	assert.Error(t, c.RemoveFromCart(context.Background(), "42"))
	assert.Empty(t, view.mutations)

	api.err = nil
	api.update = &models.LineUpdate{CartSummary: models.CartSummary{Success: true, CartQuantity: 3, Subtotal: 30}, ItemTotal: 30}
	require.NoError(t, c.UpdateCart(context.Background(), "42", 3))
	assert.Equal(t, []string{"badge", "item-total", "subtotal", "total"}, view.mutations)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"3", 3, true},
		{" 12 ", 12, true},
		{"3.7", 3, true},
		{"+4", 4, true},
		{"-2", -2, true},
		{"7abc", 7, true},
		{"abc", 0, false},
		{"", 0, false},
		{"-", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseQuantity(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestController_EmptyProductIDIsIgnored(t *testing.T) {
	c, doc, srv := newTestController(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.UpdateCart(ctx, "", 3), ErrNoProduct)
	assert.ErrorIs(t, c.RemoveFromCart(ctx, ""), ErrNoProduct)

	c.Increase(ctx, "")
	c.Decrease(ctx, "")
	c.ChangeQuantity(ctx, "")
	c.Remove(ctx, "")
	c.Wait()

	assert.Empty(t, srv.recorded())
	assert.Equal(t, "3", doc.Badge())
}

func TestDocument_EmptyIDMatchesNothing(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(cartPage))
	require.NoError(t, err)
	t.Cleanup(doc.Close)

	_, ok := doc.Quantity("")
	assert.False(t, ok)
	assert.False(t, doc.HasLine(""))
	assert.Empty(t, doc.LineElements(""))

	doc.RemoveLine("")
	assert.True(t, doc.HasLine("42"))
	assert.True(t, doc.HasLine("7"))
	assert.Equal(t, "$25.00", doc.Text("cart-total"))
}

func TestController_IntentsDropWhenQueueIsFull(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(cartPage))
	require.NoError(t, err)
	t.Cleanup(doc.Close)

	srv := newCartServer(t)
	started := make(chan struct{})
	release := make(chan struct{})
	srv.mu.Lock()
	srv.responses = append(srv.responses, func(w http.ResponseWriter) {
		close(started)
		<-release
		_ = json.NewEncoder(w).Encode(updateResponse(3, 30, 30))
	})
	srv.mu.Unlock()
	srv.replyJSON(updateResponse(4, 40, 40))

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	c := New(doc, client, WithWorkers(1), WithQueueSize(1))
	t.Cleanup(c.Close)

	ctx := context.Background()
	c.Increase(ctx, "42")
	<-started

	done := make(chan struct{})
	go func() {
		c.Increase(ctx, "42")
		c.Increase(ctx, "42")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("intent blocked on a full queue")
	}

	close(release)
	c.Wait()

	assert.Len(t, srv.recorded(), 2)
	assert.Equal(t, "4", doc.Badge())
}
