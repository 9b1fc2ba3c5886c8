package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-classifier/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportFile_CreatesPendingJob(t *testing.T) {
	testConfig(t)
	st, err := initStore(t.Context())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	path := writeFile(t, "contacts.csv",
		"Nom;Email;Activité;Ville\n"+
			"Martin Dupont;martin@pharmacie-dupont.fr;Pharmacien;Lyon\n"+
			"Jean Durand;JEAN@Durand-Distribution.fr;Grossiste;Paris\n")

	job, err := importFile(t.Context(), st, path, "fr")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, 2, job.TotalRows)
	assert.Equal(t, "fr", job.Language)

	rows, err := st.ListRows(t.Context(), job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Ordinal)
	assert.Equal(t, "Martin Dupont", rows[0].Contact.Name)
	assert.Equal(t, "Lyon", rows[0].Contact.City)
	assert.Equal(t, "jean@durand-distribution.fr", rows[1].Contact.Email)
	assert.Equal(t, "durand-distribution.fr", rows[1].Contact.EmailDomain)

	entries, err := st.ListActivity(t.Context(), job.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "Imported 2 contacts", entries[0].Message)
}

func TestImportFile_EmptyFileFailsJob(t *testing.T) {
	testConfig(t)
	st, err := initStore(t.Context())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	path := writeFile(t, "empty.csv", "Nom,Email\n")

	_, err = importFile(t.Context(), st, path, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")

	jobs, err := st.ListJobs(t.Context(), model.JobStatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].ErrorMessage, "no data rows")
}

func TestImportFile_MissingFile(t *testing.T) {
	testConfig(t)
	st, err := initStore(t.Context())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, err = importFile(t.Context(), st, filepath.Join(t.TempDir(), "missing.csv"), "fr")
	require.Error(t, err)

	jobs, err := st.ListJobs(t.Context(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "no job is created for an unreadable file")
}

func TestImportCmd_PrintsJobID(t *testing.T) {
	testConfig(t)
	importFilePath = writeFile(t, "contacts.csv", "name,activity\nAcme,fournisseur\n")
	importLanguage = "en"
	defer func() { importFilePath, importLanguage = "", "fr" }()

	var out bytes.Buffer
	importCmd.SetOut(&out)
	importCmd.SetContext(t.Context())
	defer importCmd.SetOut(nil)

	require.NoError(t, importCmd.RunE(importCmd, nil))
	assert.Len(t, bytes.TrimSpace(out.Bytes()), 36)
}

func TestImportCmd_MissingFileFlag(t *testing.T) {
	testConfig(t)
	importFilePath = ""

	err := importCmd.RunE(importCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--file")
}
