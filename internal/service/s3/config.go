package s3

// Config описывает подключение к S3-совместимому хранилищу с EEG-файлами.
type Config struct {
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Bucket          string `mapstructure:"Bucket"`
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
}

// Enabled reports whether enough settings are present to build a client.
func (c *Config) Enabled() bool {
	return c != nil && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Bucket != ""
}
