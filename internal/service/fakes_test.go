package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/lms/internal/payment"
	"github.com/user/lms/internal/storage"
)

type fakeMedia struct {
	mu       sync.Mutex
	uploads  []string
	deleted  []string
	failNext bool
}

func (m *fakeMedia) UploadFile(_ context.Context, path, _ string) (*storage.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return nil, errors.New("upload failed")
	}
	id := fmt.Sprintf("media/%d", len(m.uploads)+1)
	m.uploads = append(m.uploads, path)
	return &storage.Upload{SecureURL: "https://cdn.example.com/" + id, PublicID: id}, nil
}

func (m *fakeMedia) Delete(_ context.Context, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, publicID)
	return nil
}

type fakeGateway struct {
	secret string
	orders []payment.OrderRequest
	err    error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.Order, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.orders = append(g.orders, req)
	return &payment.Order{
		ID:       fmt.Sprintf("order_%d", len(g.orders)),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return payment.VerifySignature(g.secret, orderID, paymentID, signature)
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }
