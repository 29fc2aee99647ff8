package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/api/middleware"
)

func withChiParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestUserIDFromRequestRejectsGarbage(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), "not-a-uuid"))

	if _, err := userIDFromRequest(req); err == nil {
		t.Fatal("expected error for malformed user id")
	}
}

func TestUserIDFromRequestParsesContextValue(t *testing.T) {
	userID := uuid.New()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))

	got, err := userIDFromRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != userID {
		t.Fatalf("expected %s got %s", userID, got)
	}
}
