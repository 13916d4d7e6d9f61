// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

var _ = Describe("Directory", func() {
	var (
		ctx context.Context
		dir *postgres.Directory
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = postgres.NewDirectory(testPool)
		_, err := testPool.Exec(ctx, `TRUNCATE users`)
		Expect(err).NotTo(HaveOccurred())
	})

	newUser := func(email string) *auth.UserRecord {
		user, err := auth.NewUserRecord(email, "$argon2id$v=19$m=256,t=1,p=1$c2FsdA$aGFzaA", time.Now())
		Expect(err).NotTo(HaveOccurred())
		return user
	}

	It("round-trips a user by email and id", func() {
		user := newUser("a@x.com")
		_, err := dir.CreateUnique(ctx, user)
		Expect(err).NotTo(HaveOccurred())

		byEmail, err := dir.FindByEmail(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(user.ID))
		Expect(byEmail.PasswordHash).To(Equal(user.PasswordHash))
		Expect(byEmail.CreatedAt).To(BeTemporally("~", user.CreatedAt, time.Millisecond))

		byID, err := dir.FindByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Email).To(Equal("a@x.com"))
	})

	It("reports unknown users as not found", func() {
		_, err := dir.FindByEmail(ctx, "ghost@x.com")
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("rejects a second user with the same email", func() {
		_, err := dir.CreateUnique(ctx, newUser("a@x.com"))
		Expect(err).NotTo(HaveOccurred())

		_, err = dir.CreateUnique(ctx, newUser("a@x.com"))
		Expect(errors.Is(err, auth.ErrAlreadyExists)).To(BeTrue())
	})

	It("lets exactly one concurrent insert win", func() {
		const workers = 16
		users := make([]*auth.UserRecord, workers)
		for i := range users {
			users[i] = newUser("race@x.com")
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
			others    []string
		)
		for _, u := range users {
			wg.Add(1)
			go func(u *auth.UserRecord) {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := dir.CreateUnique(ctx, u)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case errors.Is(err, auth.ErrAlreadyExists):
					conflicts++
				default:
					others = append(others, err.Error())
				}
			}(u)
		}
		wg.Wait()

		Expect(others).To(BeEmpty(), strings.Join(others, "\n"))
		Expect(created).To(Equal(1))
		Expect(conflicts).To(Equal(workers - 1))

		var count int
		Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM users WHERE email = $1`, "race@x.com").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1), fmt.Sprintf("expected one row, found %d", count))
	})

	It("answers pings", func() {
		Expect(dir.Ping(ctx)).To(Succeed())
	})
})
