package sequential_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver/sequential"
)

var _ = Describe("sequential.Driver", func() {
	var driver *sequential.Driver

	BeforeEach(func() {
		driver = sequential.New("local")
	})

	It("reports its cluster name", func() {
		Expect(driver.ClusterName()).To(Equal("local"))
	})

	It("records a zero exit as DONE", func() {
		id, err := driver.SubmitToBatchDistributor(context.Background(), "true", "batch-1", nil)
		Expect(err).NotTo(HaveOccurred())

		status, _, err := driver.GetRemoteExitInfo(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal("DONE"))
	})

	It("records a nonzero exit as UNKNOWN_ERROR with the exit code in the message", func() {
		id, err := driver.SubmitToBatchDistributor(context.Background(), "exit 3", "batch-1", nil)
		Expect(err).NotTo(HaveOccurred())

		status, message, err := driver.GetRemoteExitInfo(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal("UNKNOWN_ERROR"))
		Expect(message).To(ContainSubstring("3"))
	})

	It("surfaces exit code 199 verbatim as the kill-self marker", func() {
		id, err := driver.SubmitToBatchDistributor(context.Background(), "exit 199", "batch-1", nil)
		Expect(err).NotTo(HaveOccurred())

		status, _, err := driver.GetRemoteExitInfo(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal("199"))
	})

	It("has no exit info for an unknown distributor id", func() {
		_, _, err := driver.GetRemoteExitInfo(context.Background(), "does-not-exist")
		Expect(err).To(HaveOccurred())
	})

	It("does not support array submission", func() {
		_, err := driver.SubmitArrayToBatchDistributor(context.Background(), "true", "batch-1", nil, 4)
		Expect(err).To(MatchError(clusterdriver.ErrArraySubmitUnsupported))
	})

	It("assigns a distinct id to every submission", func() {
		id1, err := driver.SubmitToBatchDistributor(context.Background(), "true", "b", nil)
		Expect(err).NotTo(HaveOccurred())
		id2, err := driver.SubmitToBatchDistributor(context.Background(), "true", "b", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(id1).NotTo(Equal(id2))
	})
})
