package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	newProcessed := func(id, merchant string, createdAt time.Time) *ProcessedReceipt {
		record := Record{
			MerchantName:  merchant,
			Date:          "2024-03-01",
			TotalAmount:   12.5,
			Currency:      "USD",
			PaymentMethod: "card",
			Items:         []Item{},
			ProcessedAt:   createdAt,
		}
		return &ProcessedReceipt{
			ID:          id,
			ChatID:      42,
			Fingerprint: record.Fingerprint(),
			Record:      record,
			CreatedAt:   createdAt,
		}
	}

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	Describe("SaveProcessed", func() {
		It("should persist the audit row and its fingerprint", func() {
			p := newProcessed("id-1", "Cafe X", time.Now())
			Expect(db.SaveProcessed(p)).To(Succeed())

			seen, err := db.SeenFingerprint(p.Fingerprint)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeTrue())

			recent, err := db.ListRecent(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(1))
			Expect(recent[0].Record.MerchantName).To(Equal("Cafe X"))
		})
	})

	Describe("SeenFingerprint", func() {
		It("should report false for an unknown fingerprint", func() {
			seen, err := db.SeenFingerprint("deadbeef")
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeFalse())
		})
	})

	Describe("ListRecent", func() {
		BeforeEach(func() {
			base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			Expect(db.SaveProcessed(newProcessed("id-1", "Oldest", base))).To(Succeed())
			Expect(db.SaveProcessed(newProcessed("id-2", "Middle", base.Add(time.Hour)))).To(Succeed())
			Expect(db.SaveProcessed(newProcessed("id-3", "Newest", base.Add(2*time.Hour)))).To(Succeed())
		})

		It("should return newest first", func() {
			recent, err := db.ListRecent(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(3))
			Expect(recent[0].Record.MerchantName).To(Equal("Newest"))
			Expect(recent[2].Record.MerchantName).To(Equal("Oldest"))
		})

		It("should honor the limit", func() {
			recent, err := db.ListRecent(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(2))
			Expect(recent[0].Record.MerchantName).To(Equal("Newest"))
		})
	})
})
