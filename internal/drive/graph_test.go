package drive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func TestDrive(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Drive Suite")
}

const contentPath = "/v1.0/me/drive/root:/receipts.xlsx:/content"

func tokenHandler(token string) http.HandlerFunc {
	return expiringTokenHandler(token, 3600)
}

func expiringTokenHandler(token string, expiresIn int) http.HandlerFunc {
	return ghttp.CombineHandlers(
		ghttp.VerifyRequest("POST", "/token"),
		ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   expiresIn,
		}),
	)
}

var _ = Describe("Graph", func() {
	var (
		server *ghttp.Server
		graph  *Graph
		ctx    context.Context
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ctx = context.Background()

		var err error
		graph, err = NewGraph(GraphConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			TokenURL:     server.URL() + "/token",
			BaseURL:      server.URL() + "/v1.0",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Upload", func() {
		When("the first attempt succeeds", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					tokenHandler("token-1"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.VerifyHeaderKV("Authorization", "Bearer token-1"),
						ghttp.RespondWith(http.StatusCreated, ""),
					),
				)
			})

			It("should upload once and succeed", func() {
				Expect(graph.Upload(ctx, "receipts.xlsx", []byte("ledger"))).To(Succeed())
				Expect(server.ReceivedRequests()).To(HaveLen(2))
			})
		})

		When("the first attempt fails with an expired token", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					tokenHandler("token-1"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.RespondWith(http.StatusUnauthorized, "token expired"),
					),
					tokenHandler("token-2"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.VerifyHeaderKV("Authorization", "Bearer token-2"),
						ghttp.RespondWith(http.StatusOK, ""),
					),
				)
			})

			It("should refresh the session once and succeed", func() {
				Expect(graph.Upload(ctx, "receipts.xlsx", []byte("ledger"))).To(Succeed())
				Expect(server.ReceivedRequests()).To(HaveLen(4))
			})
		})

		When("the caller context from an earlier upload has been canceled", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					// expires_in of 1 is inside the oauth2 expiry delta,
					// so the next upload must fetch a fresh token.
					expiringTokenHandler("token-1", 1),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.VerifyHeaderKV("Authorization", "Bearer token-1"),
						ghttp.RespondWith(http.StatusCreated, ""),
					),
					tokenHandler("token-2"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.RespondWith(http.StatusServiceUnavailable, "transient"),
					),
					tokenHandler("token-3"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.VerifyHeaderKV("Authorization", "Bearer token-3"),
						ghttp.RespondWith(http.StatusOK, ""),
					),
				)
			})

			It("should still refresh tokens and survive a transient failure", func() {
				ctx1, cancel1 := context.WithCancel(context.Background())
				Expect(graph.Upload(ctx1, "receipts.xlsx", []byte("ledger"))).To(Succeed())
				cancel1()

				Expect(graph.Upload(ctx, "receipts.xlsx", []byte("ledger"))).To(Succeed())
				Expect(server.ReceivedRequests()).To(HaveLen(6))
			})
		})

		When("both attempts fail", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					tokenHandler("token-1"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.RespondWith(http.StatusInternalServerError, "boom"),
					),
					tokenHandler("token-2"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("PUT", contentPath),
						ghttp.RespondWith(http.StatusInternalServerError, "boom"),
					),
				)
			})

			It("should return a SyncError after exactly one retry", func() {
				err := graph.Upload(ctx, "receipts.xlsx", []byte("ledger"))
				var syncErr *SyncError
				Expect(errors.As(err, &syncErr)).To(BeTrue())
				Expect(syncErr.Op).To(Equal("upload"))
				Expect(server.ReceivedRequests()).To(HaveLen(4))
			})
		})
	})

	Describe("Download", func() {
		When("the remote document exists", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					tokenHandler("token-1"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("GET", contentPath),
						ghttp.RespondWith(http.StatusOK, "ledger-bytes"),
					),
				)
			})

			It("should return the document bytes", func() {
				data, err := graph.Download(ctx, "receipts.xlsx")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("ledger-bytes"))
			})
		})

		When("no document has been published yet", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					tokenHandler("token-1"),
					ghttp.CombineHandlers(
						ghttp.VerifyRequest("GET", contentPath),
						ghttp.RespondWith(http.StatusNotFound, ""),
					),
				)
			})

			It("should return ErrNotExist without retrying", func() {
				_, err := graph.Download(ctx, "receipts.xlsx")
				Expect(err).To(MatchError(ErrNotExist))
				Expect(server.ReceivedRequests()).To(HaveLen(2))
			})
		})
	})
})

var _ = Describe("NewGraph", func() {
	It("should require credentials", func() {
		_, err := NewGraph(GraphConfig{TenantID: "tenant"})
		Expect(err).To(HaveOccurred())
	})

	It("should require a tenant when no token URL is given", func() {
		_, err := NewGraph(GraphConfig{ClientID: "id", ClientSecret: "secret"})
		Expect(err).To(HaveOccurred())
	})
})
