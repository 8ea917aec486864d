package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"math"
	"math/big"
	"strconv"

	"github.com/zintix-labs/ibslab"
	"github.com/zintix-labs/ibslab/demo/demo_configs"
	"github.com/zintix-labs/ibslab/demo/demo_models"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/spec"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var cfg *config = new(config)

type config struct {
	name      string
	id        spec.MID
	worker    int
	trials    int
	seed      int64
	pprofmode string
}

type midFlag struct{ p *spec.MID }

func (f midFlag) String() string { return fmt.Sprint(uint(*f.p)) }
func (f midFlag) Set(s string) error {
	u, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return err
	}
	*f.p = spec.MID(uint(u))
	return nil
}

func bindVar() {
	// 綁定 Flag 到本地變數的指標 (&)
	flag.Var(midFlag{&cfg.id}, "model", "target model id")
	flag.IntVar(&cfg.worker, "worker", 1, "number of workers")
	flag.IntVar(&cfg.trials, "trials", 100, "estimate trials on the fixed dataset")
	flag.Int64Var(&cfg.seed, "seed", -1, "int64 seed for random number generator")
	flag.StringVar(&cfg.pprofmode, "p", "", "pprof: '', cpu, heap, allocs")

	flag.Parse()

	// given seed illeagel -> default seed
	if cfg.seed < 1 {
		seed, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err != nil {
			log.Fatal(err)
		}
		cfg.seed = seed.Int64()
	}
}

// 這裡解析並分支要執行的校準器
func executeCalibrator() {
	cfg.valid() // 基本檢查

	lab, err := ibslab.NewAuto(
		core.Default(),
		ibslab.Configs(demo_configs.FS),
		ibslab.Models(demo_models.Reg),
	)
	if err != nil {
		log.Fatal(err)
	}
	c, err := lab.NewCalibratorWithSeed(cfg.id, cfg.seed)
	if err != nil {
		log.Fatal(err)
	}
	ent, _ := lab.EntryById(cfg.id)
	cfg.name = ent.Name
	// 至此確保可執行
	green := "\033[1;32m"
	reset := "\033[0m"
	p := message.NewPrinter(language.English)

	if cfg.worker == 1 { // 單線程
		p.Printf("%s[MODEL:%s] [SEED:%d] [TRIALS:%d]%s\n", green, cfg.name, cfg.seed, cfg.trials, reset)
		st, used, err := c.Run(cfg.trials, true)
		if err != nil {
			log.Fatal(err)
		}
		st.StdOut(used)
	} else {
		p.Printf("%s[WORKERS:%d] [MODEL:%s] [SEED:%d] [TRIALS:%d]%s\n", green, cfg.worker, cfg.name, cfg.seed, cfg.trials, reset)
		st, used, err := c.RunMP(cfg.trials, cfg.worker, true) // 併發
		if err != nil {
			log.Fatal(err)
		}
		st.StdOut(used)
	}
}

func (cfg *config) valid() {
	p := message.NewPrinter(language.English)

	// 工作協程檢查(併發數)
	if cfg.worker < 1 {
		log.Fatal("value err : workers must > 0")
	}

	// trial 檢查
	if cfg.trials < 1 {
		log.Fatal("value err : trials must > 0")
	}

	// trial 太多 resize（一個 trial 對整份資料集重估一次，10 萬次已遠超覆蓋率檢定所需）
	if cfg.trials > 100000 {
		p.Printf("too much trials: %d resized to 100k trials\n", cfg.trials)
		cfg.trials = 100000
	}
}
