package drive

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Local", func() {
	var (
		store *Local
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		store, err = NewLocal(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	It("should round-trip a document", func() {
		Expect(store.Upload(ctx, "receipts.xlsx", []byte("ledger"))).To(Succeed())

		data, err := store.Download(ctx, "receipts.xlsx")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("ledger"))
	})

	It("should return ErrNotExist for an unpublished document", func() {
		_, err := store.Download(ctx, "receipts.xlsx")
		Expect(err).To(MatchError(ErrNotExist))
	})

	It("should replace prior contents on upload", func() {
		Expect(store.Upload(ctx, "receipts.xlsx", []byte("v1"))).To(Succeed())
		Expect(store.Upload(ctx, "receipts.xlsx", []byte("v2"))).To(Succeed())

		data, err := store.Download(ctx, "receipts.xlsx")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("v2"))
	})

	It("should not leave temp files behind", func() {
		Expect(store.Upload(ctx, "receipts.xlsx", []byte("ledger"))).To(Succeed())
		matches, err := filepath.Glob(filepath.Join(store.basePath, "*.tmp-*"))
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(BeEmpty())
	})
})
