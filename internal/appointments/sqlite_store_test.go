package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreScenario(t *testing.T) {
	store := openTestSQLite(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	slots, err := svc.Availability(ctx, 5, "2025-06-10")
	require.NoError(t, err)
	require.Len(t, slots, 16)

	appt, err := svc.Book(ctx, johnDoeBooking())
	require.NoError(t, err)

	slots, err = svc.Availability(ctx, 5, "2025-06-10")
	require.NoError(t, err)
	assert.NotContains(t, slots, "09:00")

	list, err := svc.List(ctx, Filter{PatientEmail: "john@example.com"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fever", list[0].Reason)
	assert.Equal(t, "Dr. Mohit Adoni", list[0].DoctorName)

	_, err = svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	again, err := svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, StatusCancelled, again.Status)
}

func TestSQLiteStoreUniqueSlotIndex(t *testing.T) {
	store := openTestSQLite(t)
	_, err := SeedDoctors(context.Background(), store)
	require.NoError(t, err)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ok    int
		taken int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CreateAppointment(ctx, &Appointment{
				DoctorID: 5, PatientName: "John Doe", PatientEmail: "john@example.com",
				Date: "2025-06-10", Time: "09:00", Reason: "fever", Status: StatusConfirmed,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrSlotTaken) {
				taken++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, taken)
}

func TestSQLiteStoreVisits(t *testing.T) {
	store := openTestSQLite(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	appt, err := svc.Book(ctx, johnDoeBooking())
	require.NoError(t, err)
	visit, err := svc.AddVisitNotes(ctx, appt.ID, "migraine", "")
	require.NoError(t, err)

	_, err = svc.AddPrescription(ctx, NewPrescription{
		VisitID: visit.ID, MedicationName: "Ibuprofen", Dosage: "200mg", Frequency: "as needed", Duration: "3 days",
	})
	require.NoError(t, err)

	history, err := svc.PatientHistory(ctx, "john@example.com", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "migraine", history[0].Diagnosis)
	assert.Len(t, history[0].Prescriptions, 1)

	err = store.CreatePrescription(ctx, &Prescription{VisitID: 999, MedicationName: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
