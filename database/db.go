package database

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	"github.com/kcsc/posbridge/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	// The staging database may come up after the workers in containerized
	// deployments; retry the first ping with bounded backoff.
	pingPolicy := backoff.NewExponentialBackOff()
	pingPolicy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(db.Ping, pingPolicy)
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}
	return db, nil
}

func createTables(db *sql.DB) error {
	creators := []func(*sql.DB) error{
		createActiveFileTable,
		createSplitFileTable,
		createRawRowTable,
		createCheckedRowTable,
		createImportDocumentTable,
		createImportItemTable,
		createItemTable,
		createPOSProfileTable,
		createPaymentMethodTable,
		createSalesInvoiceTable,
		createSalesInvoiceItemTable,
		createSalesInvoicePaymentTable,
	}
	for _, create := range creators {
		if err := create(db); err != nil {
			return err
		}
	}
	return nil
}

// createRawRowTable creates the staging table for rows as received from the
// terminals. Numeric-shaped columns are TEXT on purpose: their shape is the
// quality stage's concern.
func createRawRowTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_raw_rows (
			row_id BIGINT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			invoice_pk TEXT,
			market_id TEXT,
			nielsen_code TEXT,
			market_description TEXT,
			date_timestamp TEXT,
			day TEXT,
			year TEXT,
			receipt_no TEXT,
			pos_no TEXT,
			item_code TEXT,
			barcode TEXT,
			item_description TEXT,
			sales_price TEXT,
			quantity TEXT,
			discount_percent TEXT,
			discount_value TEXT,
			total_price TEXT,
			invoice_total TEXT,
			total_quantity TEXT,
			payment_method TEXT,
			date_description TEXT,
			billing_type TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating pos_raw_rows table: %v", err)
	}
	_, idxErr := db.Exec(`CREATE INDEX IF NOT EXISTS idx_pos_raw_rows_batch ON pos_raw_rows (batch_id, status)`)
	if idxErr != nil {
		log.Printf("Error creating pos_raw_rows index: %v", idxErr)
	}
	return err
}

func createCheckedRowTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_checked_rows (
			check_id BIGINT PRIMARY KEY,
			raw_row_id BIGINT NOT NULL UNIQUE,
			batch_id TEXT NOT NULL,
			invoice_pk TEXT,
			market_id TEXT,
			nielsen_code TEXT,
			market_description TEXT,
			date_timestamp TEXT,
			day TEXT,
			year TEXT,
			receipt_no TEXT,
			pos_no TEXT,
			item_code TEXT,
			barcode TEXT,
			item_description TEXT,
			sales_price TEXT,
			quantity TEXT,
			discount_percent TEXT,
			discount_value TEXT,
			total_price TEXT,
			invoice_total TEXT,
			total_quantity TEXT,
			payment_method TEXT,
			date_description TEXT,
			billing_type TEXT,
			status TEXT NOT NULL,
			rejected_reason TEXT,
			imported BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating pos_checked_rows table: %v", err)
	}
	_, idxErr := db.Exec(`CREATE INDEX IF NOT EXISTS idx_pos_checked_rows_batch ON pos_checked_rows (batch_id, status, imported)`)
	if idxErr != nil {
		log.Printf("Error creating pos_checked_rows index: %v", idxErr)
	}
	return err
}

func createImportDocumentTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_import_documents (
			document_id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			invoice_key TEXT NOT NULL,
			market_id TEXT,
			market_description TEXT,
			nielsen_code TEXT,
			pos_no TEXT,
			receipt_no TEXT,
			pos_profile TEXT,
			posting_date TEXT,
			posting_time TEXT,
			invoice_total NUMERIC NOT NULL DEFAULT 0,
			total_quantity NUMERIC NOT NULL DEFAULT 0,
			invoice_amount NUMERIC NOT NULL DEFAULT 0,
			actual_quantity NUMERIC NOT NULL DEFAULT 0,
			net_value NUMERIC NOT NULL DEFAULT 0,
			billing_type TEXT,
			payment_method TEXT,
			docstatus SMALLINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			rejected_reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			modified_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating pos_import_documents table: %v", err)
	}
	_, idxErr := db.Exec(`CREATE INDEX IF NOT EXISTS idx_pos_import_documents_key ON pos_import_documents (invoice_key)`)
	if idxErr != nil {
		log.Printf("Error creating pos_import_documents index: %v", idxErr)
	}
	return err
}

func createImportItemTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_import_items (
			item_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			idx INT NOT NULL,
			checked_row_id BIGINT,
			item_code TEXT,
			item_description TEXT,
			barcode TEXT,
			quantity NUMERIC NOT NULL DEFAULT 0,
			sales_price NUMERIC NOT NULL DEFAULT 0,
			discount_percent NUMERIC NOT NULL DEFAULT 0,
			discount_value NUMERIC NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			rejected_reason TEXT
		)
	`)
	if err != nil {
		log.Printf("Error creating pos_import_items table: %v", err)
	}
	_, idxErr := db.Exec(`CREATE INDEX IF NOT EXISTS idx_pos_import_items_document ON pos_import_items (document_id, idx)`)
	if idxErr != nil {
		log.Printf("Error creating pos_import_items index: %v", idxErr)
	}
	return err
}

func createActiveFileTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS active_files (
			file_id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			batch_size INT NOT NULL,
			status TEXT NOT NULL,
			status_description TEXT,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating active_files table: %v", err)
	}
	return err
}

func createSplitFileTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS split_files (
			split_id TEXT PRIMARY KEY,
			parent_file_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			batch_number INT NOT NULL,
			total_records INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			status_description TEXT,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating split_files table: %v", err)
	}
	return err
}

func createItemTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			item_code TEXT PRIMARY KEY,
			item_name TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating items table: %v", err)
	}
	return err
}

func createPOSProfileTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_profiles (
			name TEXT PRIMARY KEY,
			warehouse TEXT,
			customer TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating pos_profiles table: %v", err)
	}
	return err
}

func createPaymentMethodTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payment_methods (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating payment_methods table: %v", err)
	}
	return err
}

func createSalesInvoiceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sales_invoices (
			invoice_id TEXT PRIMARY KEY,
			pos_profile TEXT,
			customer TEXT,
			warehouse TEXT,
			posting_date TEXT,
			posting_time TEXT,
			import_document_id TEXT,
			market_id TEXT,
			pos_no TEXT,
			receipt_no TEXT,
			is_return BOOLEAN NOT NULL DEFAULT FALSE,
			return_against TEXT,
			docstatus SMALLINT NOT NULL DEFAULT 0,
			grand_total NUMERIC NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating sales_invoices table: %v", err)
	}
	_, idxErr := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sales_invoices_receipt ON sales_invoices (market_id, pos_no, receipt_no)`)
	if idxErr != nil {
		log.Printf("Error creating sales_invoices index: %v", idxErr)
	}
	return err
}

func createSalesInvoiceItemTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sales_invoice_items (
			invoice_id TEXT NOT NULL,
			idx INT NOT NULL,
			item_code TEXT,
			description TEXT,
			barcode TEXT,
			qty NUMERIC NOT NULL DEFAULT 0,
			rate NUMERIC NOT NULL DEFAULT 0,
			price_list_rate NUMERIC NOT NULL DEFAULT 0,
			discount_percentage NUMERIC NOT NULL DEFAULT 0,
			checked_row_id BIGINT,
			PRIMARY KEY (invoice_id, idx)
		)
	`)
	if err != nil {
		log.Printf("Error creating sales_invoice_items table: %v", err)
	}
	return err
}

func createSalesInvoicePaymentTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sales_invoice_payments (
			invoice_id TEXT NOT NULL,
			mode_of_payment TEXT,
			amount NUMERIC NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		log.Printf("Error creating sales_invoice_payments table: %v", err)
	}
	return err
}
