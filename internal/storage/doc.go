// Package storage provides SQLite-based persistence for embedded chunks.
//
// # Database Schema
//
// Tables:
//   - projects: one row per indexed root directory
//   - files: path, hex sha256, planning strategy and embedding model per file
//   - chunks: chunk text, position, and its vector as a little-endian float32 blob
//
// Deleting a file or project cascades to its chunks. The schema is versioned
// with semantic versions and upgraded by ApplyMigrations when a database is
// opened.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.chunkembed/chunkembed.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for path, fe := range result.Results {
//	    file := &storage.File{ProjectID: project.ID, FilePath: path, ...}
//	    if err := tx.SaveFileEmbeddings(ctx, file, fe.Embeddings); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Vector Search
//
// SearchVector compares the query against every chunk of the project with the
// same dimension. The default build scores in Go; building with the
// sqlite_vec tag switches to the mattn/go-sqlite3 driver and computes
// distances with vec_distance_cosine.
package storage
